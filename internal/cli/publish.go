package cli

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kilnhq/kiln/internal/build"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/driver"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/publish"
	"github.com/kilnhq/kiln/internal/store"
)

// Represents the 'kiln publish' command.
type PublishCmd struct {
	Dir  string `arg:"" help:"Committed build output directory." type:"existingdir"`
	Mode string `help:"Publish mode: deps, target or all." default:"all" enum:"deps,target,all"`
	Sign bool   `help:"Sign published artifacts."`
}

// Executes the publish command.
//
// Re-publishes a committed build output directory to its tiers. Pushing
// content a tier already holds is a recorded no-op, so this is safe to
// retry after a partial publish.
func (c *PublishCmd) Run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	output, err := driver.ReadOutput(c.Dir)
	if err != nil {
		return err
	}

	man := output.Manifest
	req := buildspec.Request{
		Version:     man.Version,
		Toolchain:   man.Toolchain,
		Arch:        strings.TrimPrefix(man.Platform, man.Toolchain+"-"),
		CacheRoot:   cfg.CacheRoot,
		CacheMode:   buildspec.CacheAll,
		PublishMode: buildspec.PublishMode(c.Mode),
	}
	if c.Sign {
		req.KeyRef = cfg.signingKeyPath()
	}

	generated, err := buildspec.Generate(req)
	if err != nil {
		return err
	}
	// The manifest records what this output actually contains; the request
	// flags that shaped the original component list are not persisted.
	spec := generated.WithComponents(manifestComponents(man))

	deps := build.Deps{
		Opener:  store.NewOpener(cfg.Store),
		WorkDir: paths.Work(),
	}
	if req.KeyRef != "" {
		signer, err := publish.NewSigner(req.KeyRef)
		if err != nil {
			return err
		}
		deps.Signer = signer
	}

	res, err := build.Republish(ctx, deps, spec, output)
	if err != nil {
		return err
	}

	slog.Info("publish finished",
		"published", len(res.Report.Published),
		"skipped", len(res.Report.Skipped),
		"failures", len(res.Report.Failures),
	)
	report(res)
	return nil
}

func manifestComponents(man driver.Manifest) []buildspec.Component {
	comps := make([]buildspec.Component, 0, len(man.Components))
	for _, rec := range man.Components {
		comps = append(comps, buildspec.Component{
			Name:    rec.Name,
			Version: rec.Version,
			Class:   rec.Class,
		})
	}
	return comps
}
