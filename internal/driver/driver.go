package driver

import (
	"context"
	"fmt"
	"io"

	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/pkgmgr"
	"github.com/kilnhq/kiln/internal/retry"
	"github.com/kilnhq/kiln/internal/runtime"
	"github.com/kilnhq/kiln/internal/store"
)

// Environment is the isolated build environment surface the pipeline
// drives. Satisfied by [runtime.Environment].
type Environment interface {
	ID() string
	Run(ctx context.Context, command string, opts runtime.RunOptions) (int, error)
	MkdirAll(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, data []byte) error
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	Extract(ctx context.Context, envPath, hostDir string) error
	Destroy(ctx context.Context)
}

// Provisioner acquires environments for pipelines. Production use wraps
// [runtime.Runtime]; tests substitute fakes.
type Provisioner interface {
	Provision(ctx context.Context, spec *buildspec.Spec, id string, mounts []runtime.Mount) (Environment, error)
}

// Verifier checks detached signatures on cached artifacts. Satisfied by
// [publish.Verifier]. A nil verifier fails closed: components whose tier
// requires verification are demoted to local builds.
type Verifier interface {
	Verify(message io.Reader, signature []byte) error
}

// Config wires a driver's collaborators and host directories.
type Config struct {
	Provisioner Provisioner
	Manager     pkgmgr.Manager
	Opener      store.Opener
	Verifier    Verifier

	Retry    retry.Policy
	Timeouts Timeouts

	CacheDir  string // Host cache mounted into every environment.
	WorkDir   string // Scratch for downloaded blobs; discarded at cleanup.
	OutputDir string // Durable output root; results commit here atomically.

	LogLines int // Build log ring capacity; zero selects the default.
}

const (
	defaultLogLines = 400
	logTailLines    = 40
)

// Driver runs build pipelines. One driver serves many requests; each
// Execute call is an independent pipeline with no shared mutable state.
type Driver struct {
	cfg Config
}

func New(cfg Config) (*Driver, error) {
	if cfg.Provisioner == nil || cfg.Manager == nil || cfg.Opener == nil {
		return nil, fmt.Errorf("%w: provisioner, manager and store opener are required", ErrDriver)
	}
	if cfg.CacheDir == "" || cfg.WorkDir == "" || cfg.OutputDir == "" {
		return nil, fmt.Errorf("%w: cache, work and output directories are required", ErrDriver)
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = defaultLogLines
	}
	return &Driver{cfg: cfg}, nil
}

// Execute runs one pipeline to completion: provision, prepare,
// materialize the given resolutions, build the rest, merge the view and
// commit the output. The resolutions map is taken as a starting point;
// artifacts that fail integrity checks during materialization are demoted
// to local builds without failing the pipeline.
func (d *Driver) Execute(ctx context.Context, spec *buildspec.Spec, resolutions map[string]cache.Resolution) (*Output, error) {
	return newPipeline(d.cfg, spec, resolutions).run(ctx)
}

// RuntimeProvisioner provisions containerd-backed environments.
type RuntimeProvisioner struct {
	Runtime *runtime.Runtime

	// ImageOverride substitutes a locally imported image for the spec's
	// registry reference. Set for air-gapped hosts where the toolchain
	// image arrives as an archive instead of a pull.
	ImageOverride string
}

func (p *RuntimeProvisioner) Provision(ctx context.Context, spec *buildspec.Spec, id string, mounts []runtime.Mount) (Environment, error) {
	ref := spec.Image
	platform := "linux/" + spec.Arch

	if p.ImageOverride != "" {
		// Imported archives are already unpacked; there is nothing to pull.
		ref = p.ImageOverride
	} else if err := p.Runtime.EnsureImage(ctx, ref, platform); err != nil {
		return nil, err
	}

	return p.Runtime.CreateEnvironment(ctx, ref, id, platform, mounts)
}
