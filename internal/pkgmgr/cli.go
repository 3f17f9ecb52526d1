package pkgmgr

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/store"
)

// Package manager binary expected inside the build environment.
const DefaultBin = "hpkg"

// Production [Manager]: cache queries stat the tier's object store
// directly, builds shell out to the manager binary inside the
// environment.
type CLI struct {
	bin  string
	open store.Opener
}

// Creates a [CLI] manager. An empty bin selects [DefaultBin]. The opener is
// injected so tests and concurrent pipelines never share ambient store
// state.
func NewCLI(bin string, open store.Opener) *CLI {
	if bin == "" {
		bin = DefaultBin
	}
	return &CLI{bin: bin, open: open}
}

// Stats the artifact key in the mirror's store. Absence is not an error;
// tier outages surface as errors so the caller can decide whether to
// degrade or abort.
func (c *CLI) QueryCache(ctx context.Context, mirror buildspec.Mirror, art artifact.Artifact) (bool, artifact.Artifact, error) {
	st, err := c.open(mirror.URL)
	if err != nil {
		return false, art, fmt.Errorf("%w: tier %s: %v", ErrQuery, mirror.Tier, err)
	}

	info, err := st.Stat(ctx, art.Key())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, art, nil
		}
		return false, art, fmt.Errorf("%w: tier %s: %v", ErrQuery, mirror.Tier, err)
	}

	art.Descriptor.Size = info.Size
	return true, art, nil
}

// Runs the manager's build for one component. A nonzero exit is an
// [ErrBuild]; the caller owns captured output and diagnostics.
func (c *CLI) BuildComponent(ctx context.Context, r Runner, comp buildspec.Component, manifestPath, destDir string) error {
	command := fmt.Sprintf("%s build --manifest %s --destdir %s %s",
		c.bin, manifestPath, destDir, SpecString(comp))

	exit, err := r.Run(ctx, command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBuild, comp.Name, err)
	}
	if exit != 0 {
		return fmt.Errorf("%w: %s exited %d", ErrBuild, comp.Name, exit)
	}
	return nil
}

// Runs the manager's verification of an installed tree. A nonzero exit is
// an [ErrVerify]; diagnostics stream through the runner's output capture.
func (c *CLI) VerifyComponent(ctx context.Context, r Runner, comp buildspec.Component, destDir string) error {
	command := fmt.Sprintf("%s verify --destdir %s %s", c.bin, destDir, SpecString(comp))

	exit, err := r.Run(ctx, command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrVerify, comp.Name, err)
	}
	if exit != 0 {
		return fmt.Errorf("%w: %s exited %d", ErrVerify, comp.Name, exit)
	}
	return nil
}
