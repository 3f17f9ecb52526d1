package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/pkgmgr"
	"github.com/kilnhq/kiln/internal/store"
)

// Represents the 'kiln resolve' command.
type ResolveCmd struct {
	Version   string `arg:"" help:"Product version, e.g. 25.11."`
	Toolchain string `help:"Toolchain identifier." default:"noble"`
	Arch      string `help:"Target CPU architecture." default:"${arch}" enum:"amd64,arm64"`

	GPU     bool `name:"gpu" help:"Include GPU-accelerated variants."`
	Minimal bool `help:"Prune optional components."`

	Cache string `help:"Cache mode: none, deps or all." default:"all" enum:"none,deps,all"`
}

// Executes the resolve command.
//
// Generates the spec and probes the cache tiers for every component, then
// prints the resolution table. Nothing is provisioned, downloaded or built.
func (c *ResolveCmd) Run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	spec, err := buildspec.Generate(buildspec.Request{
		Version:     c.Version,
		Toolchain:   c.Toolchain,
		Arch:        c.Arch,
		GPU:         c.GPU,
		Minimal:     c.Minimal,
		CacheRoot:   cfg.CacheRoot,
		CacheMode:   buildspec.CacheMode(c.Cache),
		PublishMode: buildspec.PublishNone,
	})
	if err != nil {
		return err
	}

	opener := store.NewOpener(cfg.Store)
	resolutions, err := cache.NewResolver(pkgmgr.NewCLI("", opener)).Resolve(ctx, spec)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tVERSION\tCLASS\tRESOLUTION")
	for _, comp := range spec.Components {
		res := resolutions[comp.Name]
		state := "build"
		if res.State == cache.Hit {
			state = fmt.Sprintf("cached (%s)", res.Mirror.Tier)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", comp.Name, comp.Version, comp.Class, state)
	}
	return w.Flush()
}
