package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/assemble"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/driver"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/pkgmgr"
	"github.com/kilnhq/kiln/internal/publish"
	"github.com/kilnhq/kiln/internal/retry"
	"github.com/kilnhq/kiln/internal/store"
)

// Deps wires the collaborators one build needs. The caller owns their
// lifecycles; a single value serves many concurrent builds.
type Deps struct {
	Provisioner driver.Provisioner
	Manager     pkgmgr.Manager
	Opener      store.Opener
	Signer      *publish.Signer // nil when no signing key is configured.
	Verifier    driver.Verifier // nil when no verification key is configured.

	Retry    retry.Policy
	Timeouts driver.Timeouts

	CacheDir  string
	WorkDir   string
	OutputDir string
}

// Result is everything one build produced: the spec it ran under, the
// committed output tree, the relocatable package, and the publish report.
type Result struct {
	Spec    *buildspec.Spec
	Output  *driver.Output
	Package *assemble.Package
	Report  publish.Report
}

// Run executes one build request end to end. The pipeline result is
// committed before assembly starts, so a publishing failure never loses
// the build; per-tier publish problems are reported in the result, not
// returned as errors.
func Run(ctx context.Context, deps Deps, req buildspec.Request) (*Result, error) {
	spec, err := buildspec.Generate(req)
	if err != nil {
		return nil, err
	}
	if spec.Signing.Enabled && deps.Signer == nil {
		return nil, fmt.Errorf("%w: signing requested but no signer is configured", ErrBuild)
	}
	// A nil verifier fails closed at materialization, so without a
	// verification key every hit from a signature-demanding tier is
	// rebuilt locally. The default tiers demand signatures; say it once
	// up front instead of one demotion at a time.
	if deps.Verifier == nil && spec.CacheMode != buildspec.CacheNone && signatureDemanded(spec) {
		slog.Warn("no verification key configured; cached artifacts from signature-demanding tiers will be rebuilt locally",
			"hint", "generate a keypair with 'kiln keygen' and configure its public key",
		)
	}

	slog.Info("build starting",
		"product", spec.Product,
		"version", spec.Version,
		"platform", spec.Platform,
		"components", len(spec.Components),
	)

	resolutions, err := cache.NewResolver(deps.Manager).Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}

	d, err := driver.New(driver.Config{
		Provisioner: deps.Provisioner,
		Manager:     deps.Manager,
		Opener:      deps.Opener,
		Verifier:    deps.Verifier,
		Retry:       deps.Retry,
		Timeouts:    deps.Timeouts,
		CacheDir:    deps.CacheDir,
		WorkDir:     deps.WorkDir,
		OutputDir:   deps.OutputDir,
	})
	if err != nil {
		return nil, err
	}
	output, err := d.Execute(ctx, spec, resolutions)
	if err != nil {
		return nil, err
	}

	res, err := finish(ctx, deps, spec, output)
	if err != nil {
		return nil, err
	}

	slog.Info("build finished",
		"package", res.Package.Path,
		"published", len(res.Report.Published),
		"publish_failures", len(res.Report.Failures),
		"warnings", len(output.Warnings),
	)
	return res, nil
}

// signatureDemanded says whether any cache hit under this spec would need
// a valid detached signature to be accepted.
func signatureDemanded(spec *buildspec.Spec) bool {
	if spec.Verify || spec.Signing.Enabled {
		return true
	}
	for _, m := range spec.Mirrors {
		if m.Trusted {
			return true
		}
	}
	return false
}

// Republish re-runs assembly and publishing over a committed output
// directory. This is the recovery path after a partial publish: archives
// are deterministic and tier writes are idempotent, so pushing content a
// tier already holds is recorded as skipped, not re-uploaded.
func Republish(ctx context.Context, deps Deps, spec *buildspec.Spec, output *driver.Output) (*Result, error) {
	if spec.Signing.Enabled && deps.Signer == nil {
		return nil, fmt.Errorf("%w: signing requested but no signer is configured", ErrBuild)
	}
	return finish(ctx, deps, spec, output)
}

// finish archives the publishable blobs, assembles the relocatable package
// and pushes everything the publish mode routes to a tier.
func finish(ctx context.Context, deps Deps, spec *buildspec.Spec, output *driver.Output) (*Result, error) {
	// Component blobs are archived before assembly relocates the view, so
	// cached trees keep the build-prefix layout future pipelines expect.
	it, err := publishItems(spec, output, deps.WorkDir)
	if err != nil {
		return nil, err
	}
	defer it.discard()

	pkg, err := assemblePackage(spec, output)
	if err != nil {
		return nil, err
	}
	if spec.PublishMode == buildspec.PublishTarget || spec.PublishMode == buildspec.PublishAll {
		it.target = append(it.target, publish.Item{Artifact: pkg.Artifact, Path: pkg.Path})
	}

	report, err := publishAll(ctx, deps, spec, it)
	if err != nil {
		return nil, err
	}
	return &Result{Spec: spec, Output: output, Package: pkg, Report: report}, nil
}

// items groups publishable blobs by destination: dependency artifacts for
// the shared tier, the product blob and package for the release tier.
type items struct {
	deps    []publish.Item
	target  []publish.Item
	blobDir string
}

func (i *items) discard() {
	if i.blobDir != "" {
		os.RemoveAll(i.blobDir)
	}
}

// publishItems archives the component trees this pipeline built into
// blobs under a scratch directory. Cached components are never
// re-archived: their blobs already live in a tier, and a fresh archive of
// the same tree would collide with them over packing metadata.
func publishItems(spec *buildspec.Spec, output *driver.Output, workDir string) (*items, error) {
	mode := spec.PublishMode
	out := &items{}
	if mode == buildspec.PublishNone {
		return out, nil
	}

	built := make(map[string]bool)
	for _, rec := range output.Manifest.Components {
		if rec.Source == driver.SourceBuilt {
			built[rec.Name] = true
		}
	}

	if err := os.MkdirAll(workDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuild, err)
	}
	blobDir, err := os.MkdirTemp(workDir, "blobs-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuild, err)
	}
	out.blobDir = blobDir

	for _, comp := range spec.Components {
		if !built[comp.Name] {
			continue
		}
		isTarget := comp.Name == spec.Product
		if isTarget && mode == buildspec.PublishDeps {
			continue
		}
		if !isTarget && mode == buildspec.PublishTarget {
			continue
		}

		item, err := componentItem(spec, comp, output.ComponentDirs[comp.Name], blobDir)
		if err != nil {
			out.discard()
			return nil, err
		}
		if isTarget {
			out.target = append(out.target, item)
		} else {
			out.deps = append(out.deps, item)
		}
	}
	return out, nil
}

func componentItem(spec *buildspec.Spec, comp buildspec.Component, treeDir, blobDir string) (publish.Item, error) {
	if treeDir == "" {
		return publish.Item{}, fmt.Errorf("%w: no tree for component %s", ErrBuild, comp.Name)
	}
	blobPath := filepath.Join(blobDir, artifact.BlobName(comp.Name, comp.Version))
	if err := assemble.ArchiveTree(treeDir, blobPath); err != nil {
		return publish.Item{}, err
	}
	art, err := artifact.FromFile(comp.Name, comp.Version, spec.Platform, artifact.MediaTypeComponent, blobPath)
	if err != nil {
		return publish.Item{}, err
	}
	return publish.Item{Artifact: art, Path: blobPath}, nil
}

// assemblePackage relocates the committed view in place and wraps it into
// the relocatable package, written next to the view.
func assemblePackage(spec *buildspec.Spec, output *driver.Output) (*assemble.Package, error) {
	manifest, err := os.ReadFile(output.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuild, err)
	}
	return assemble.Assemble(assemble.Input{
		Product:  spec.Product,
		Version:  spec.Version,
		Platform: spec.Platform,
		ViewDir:  output.ViewDir,
		Manifest: manifest,
		OutDir:   output.Dir,
	})
}

// publishAll pushes each batch to its tier and folds the per-tier reports
// into one. Signing failures abort before any write; everything else is
// per-tier best effort.
func publishAll(ctx context.Context, deps Deps, spec *buildspec.Spec, it *items) (publish.Report, error) {
	var merged publish.Report
	publisher := publish.NewPublisher(deps.Opener, deps.Signer)

	for _, batch := range publish.Route(spec, it.deps, it.target) {
		report, err := publisher.Publish(ctx, []buildspec.Mirror{batch.Mirror}, batch.Items)
		if err != nil {
			return publish.Report{}, err
		}
		merged.Published = append(merged.Published, report.Published...)
		merged.Skipped = append(merged.Skipped, report.Skipped...)
		merged.Failures = append(merged.Failures, report.Failures...)
	}
	return merged, nil
}
