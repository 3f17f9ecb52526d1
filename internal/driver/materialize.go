package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/store"
)

// materialize downloads every resolved artifact, checks it, and unpacks
// it into the environment at the component's install directory. Failures
// here never abort the pipeline: a blob that cannot be fetched or fails
// verification demotes its component to a local build, and the pipeline
// records the warning.
func (p *pipeline) materialize(ctx context.Context) error {
	for _, comp := range p.spec.Components {
		res := p.res[comp.Name]
		if res.State != cache.Hit {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.materializeComponent(ctx, comp, res); err != nil {
			p.demote(comp.Name, res, err)
			continue
		}
		p.sources[comp.Name] = res.Mirror.Tier
		slog.Info("cached artifact materialized",
			"pipeline", p.id,
			"component", comp.Name,
			"tier", res.Mirror.Tier,
		)
	}
	return nil
}

func (p *pipeline) materializeComponent(ctx context.Context, comp buildspec.Component, res cache.Resolution) error {
	st, err := p.cfg.Opener(res.Mirror.URL)
	if err != nil {
		return fmt.Errorf("tier unavailable: %v", err)
	}

	blobPath := filepath.Join(p.scratch, res.Artifact.Name)
	size, err := p.download(ctx, st, res.Artifact.Key(), blobPath)
	if err != nil {
		return fmt.Errorf("download: %v", err)
	}
	if size != res.Artifact.Descriptor.Size {
		return fmt.Errorf("size mismatch: resolved %d bytes, fetched %d", res.Artifact.Descriptor.Size, size)
	}

	if p.signatureRequired(res.Mirror) {
		if err := p.verifySignature(ctx, st, res.Artifact, blobPath); err != nil {
			return err
		}
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("blob is not a gzip stream: %v", err)
	}
	defer gz.Close()

	dest := installDir(comp.Name)
	if err := p.env.MkdirAll(ctx, dest); err != nil {
		return err
	}
	return p.env.CopyTo(ctx, gz, dest)
}

func (p *pipeline) download(ctx context.Context, st store.Store, key, dest string) (int64, error) {
	rc, err := st.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// signatureRequired says whether a blob from this mirror must carry a
// valid detached signature: always for trusted tiers, and everywhere once
// the spec demands verification or the build itself signs.
func (p *pipeline) signatureRequired(m buildspec.Mirror) bool {
	return m.Trusted || p.spec.Verify || p.spec.Signing.Enabled
}

func (p *pipeline) verifySignature(ctx context.Context, st store.Store, art artifact.Artifact, blobPath string) error {
	if p.cfg.Verifier == nil {
		return fmt.Errorf("signature required but no verification key is configured")
	}

	rc, err := st.Get(ctx, art.SignatureKey())
	if err != nil {
		return fmt.Errorf("signature unavailable: %v", err)
	}
	sig, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("signature unavailable: %v", err)
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := p.cfg.Verifier.Verify(f, sig); err != nil {
		return fmt.Errorf("signature rejected: %v", err)
	}
	return nil
}

// demote turns a failed materialization into a local build and records
// the integrity warning.
func (p *pipeline) demote(name string, res cache.Resolution, cause error) {
	p.warnings = append(p.warnings, CacheIntegrityWarning{
		Component: name,
		Tier:      res.Mirror.Tier,
		Reason:    cause.Error(),
	})
	p.res[name] = cache.Resolution{State: cache.MustBuild}
	slog.Warn("cached artifact rejected, component demoted to local build",
		"pipeline", p.id,
		"component", name,
		"tier", res.Mirror.Tier,
		"reason", cause,
	)
}
