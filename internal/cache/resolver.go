package cache

import (
	"context"
	"log/slog"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/pkgmgr"
)

// Resolution state for one component.
type State string

const (
	Hit       State = "hit"
	MustBuild State = "must-build"
)

// The per-component outcome of cache resolution. A hit carries the tier's
// mirror and the artifact reference so the driver can materialize and
// verify it later.
type Resolution struct {
	State    State
	Mirror   buildspec.Mirror  // Tier the artifact was found in; zero for must-build.
	Artifact artifact.Artifact // Reference with stored size; zero for must-build.
}

// Probes cache tiers for component artifacts. Stateless; safe for
// concurrent use by independent pipelines.
type Resolver struct {
	mgr pkgmgr.Manager
}

func NewResolver(mgr pkgmgr.Manager) *Resolver {
	return &Resolver{mgr: mgr}
}

// Resolves every component of the spec, keyed by component name.
//
// The cache mode short-circuits probing: none marks everything
// must-build, deps keeps the product building while dependencies resolve.
// Tier probe failures are logged and skipped; an unreachable tier must
// never abort resolution (the next tier, or a build, covers it). The only
// error returned is context cancellation.
func (r *Resolver) Resolve(ctx context.Context, spec *buildspec.Spec) (map[string]Resolution, error) {
	out := make(map[string]Resolution, len(spec.Components))

	for _, comp := range spec.Components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if skipResolution(spec, comp) {
			out[comp.Name] = Resolution{State: MustBuild}
			continue
		}
		out[comp.Name] = r.resolveComponent(ctx, spec, comp)
	}

	return out, nil
}

// Reports whether the cache mode forces a build for this component.
func skipResolution(spec *buildspec.Spec, comp buildspec.Component) bool {
	switch spec.CacheMode {
	case buildspec.CacheNone:
		return true
	case buildspec.CacheDeps:
		return comp.Name == spec.Product
	default:
		return false
	}
}

func (r *Resolver) resolveComponent(ctx context.Context, spec *buildspec.Spec, comp buildspec.Component) Resolution {
	want := artifact.Artifact{
		Component: comp.Name,
		Version:   comp.Version,
		Platform:  spec.Platform,
		Name:      artifact.BlobName(comp.Name, comp.Version),
	}
	want.Descriptor.MediaType = artifact.MediaTypeComponent

	for _, mirror := range spec.Mirrors {
		present, found, err := r.mgr.QueryCache(ctx, mirror, want)
		if err != nil {
			slog.Warn("tier probe failed, trying next tier",
				"component", comp.Name, "tier", mirror.Tier, "error", err)
			continue
		}
		if present {
			slog.Debug("cache hit", "component", comp.Name, "tier", mirror.Tier)
			return Resolution{State: Hit, Mirror: mirror, Artifact: found}
		}
	}

	slog.Debug("cache miss", "component", comp.Name)
	return Resolution{State: MustBuild}
}
