package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/store"
)

// One local file to upload under its artifact identity.
type Item struct {
	Artifact artifact.Artifact
	Path     string
}

// A tier write that failed. Recorded, never fatal: independent tiers have
// independent availability.
type Failure struct {
	Tier string
	Key  string
	Err  error
}

// Outcome of one publish call.
type Report struct {
	Published []string // tier/key pairs written.
	Skipped   []string // tier/key pairs already present with identical content.
	Failures  []Failure
}

// Ok reports whether every tier write succeeded.
func (r *Report) Ok() bool { return len(r.Failures) == 0 }

// Uploads artifacts to writable cache tiers, signing first when a signer is
// configured.
type Publisher struct {
	open   store.Opener
	signer *Signer
}

// NewPublisher wires a publisher. A nil signer publishes unsigned.
func NewPublisher(open store.Opener, signer *Signer) *Publisher {
	return &Publisher{open: open, signer: signer}
}

// Publish writes every item to every writable mirror, in mirror order. All
// items are signed before the first write, so a signing failure aborts with
// zero objects published. Tier failures are recorded in the report and
// never abort the remaining tiers.
func (p *Publisher) Publish(ctx context.Context, mirrors []buildspec.Mirror, items []Item) (*Report, error) {
	sigs := make([][]byte, len(items))
	if p.signer != nil {
		for i, item := range items {
			sig, err := p.signItem(item)
			if err != nil {
				return nil, err
			}
			sigs[i] = sig
		}
	}

	report := &Report{}
	for _, m := range mirrors {
		if !m.Writable {
			continue
		}
		st, err := p.open(m.URL)
		if err != nil {
			slog.Warn("tier unavailable for publish", "tier", m.Tier, "error", err)
			report.Failures = append(report.Failures, Failure{Tier: m.Tier, Err: err})
			continue
		}

		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			key := item.Artifact.Key()
			published, err := p.publishOne(ctx, st, m.Tier, item, sigs[i])
			switch {
			case err != nil:
				slog.Warn("tier write failed", "tier", m.Tier, "key", key, "error", err)
				report.Failures = append(report.Failures, Failure{Tier: m.Tier, Key: key, Err: err})
			case published:
				slog.Info("artifact published", "tier", m.Tier, "key", key, "signed", sigs[i] != nil)
				report.Published = append(report.Published, m.Tier+"/"+key)
			default:
				report.Skipped = append(report.Skipped, m.Tier+"/"+key)
			}
		}
	}
	return report, nil
}

func (p *Publisher) signItem(item Item) ([]byte, error) {
	f, err := os.Open(item.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSign, err)
	}
	defer f.Close()
	return p.signer.Sign(f)
}

// Writes one blob and its signature sidecar. An existing object with the
// same digest short-circuits to a no-op; one with different content is an
// identity conflict.
func (p *Publisher) publishOne(ctx context.Context, st store.Store, tier string, item Item, sig []byte) (bool, error) {
	key := item.Artifact.Key()

	info, err := st.Stat(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		if err := p.upload(ctx, st, key, item); err != nil {
			return false, err
		}
		return true, p.putSignature(ctx, st, item, sig)
	}
	if err != nil {
		return false, err
	}

	if info.Size != item.Artifact.Descriptor.Size {
		return false, &IdentityConflictError{Tier: tier, Key: key}
	}
	same, err := p.sameContent(ctx, st, key, item.Artifact)
	if err != nil {
		return false, err
	}
	if !same {
		return false, &IdentityConflictError{Tier: tier, Key: key}
	}

	// Identical content is already published. Backfill the signature when
	// this republish is signed and the sidecar is missing.
	if sig != nil {
		if _, err := st.Stat(ctx, item.Artifact.SignatureKey()); errors.Is(err, store.ErrNotFound) {
			if err := p.putSignature(ctx, st, item, sig); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (p *Publisher) upload(ctx context.Context, st store.Store, key string, item Item) error {
	f, err := os.Open(item.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return st.Put(ctx, key, f, item.Artifact.Descriptor.Size)
}

func (p *Publisher) putSignature(ctx context.Context, st store.Store, item Item, sig []byte) error {
	if sig == nil {
		return nil
	}
	return st.Put(ctx, item.Artifact.SignatureKey(), bytes.NewReader(sig), int64(len(sig)))
}

func (p *Publisher) sameContent(ctx context.Context, st store.Store, key string, art artifact.Artifact) (bool, error) {
	rc, err := st.Get(ctx, key)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	if err := art.Verify(rc); err != nil {
		if errors.Is(err, artifact.ErrDigest) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// A set of items bound for one tier.
type Batch struct {
	Mirror buildspec.Mirror
	Items  []Item
}

// Route scopes publication by the spec's publish mode: dependency
// artifacts go to the dependencies tier, the target's component blob and
// the relocatable package to the final-artifact tier. Read-only tiers
// never receive a batch.
func Route(spec *buildspec.Spec, deps, target []Item) []Batch {
	wantDeps := spec.PublishMode == buildspec.PublishDeps || spec.PublishMode == buildspec.PublishAll
	wantTarget := spec.PublishMode == buildspec.PublishTarget || spec.PublishMode == buildspec.PublishAll

	var batches []Batch
	if wantDeps && len(deps) > 0 {
		if m, ok := writableMirror(spec, buildspec.TierDeps); ok {
			batches = append(batches, Batch{Mirror: m, Items: deps})
		}
	}
	if wantTarget && len(target) > 0 {
		if m, ok := writableMirror(spec, buildspec.TierRelease); ok {
			batches = append(batches, Batch{Mirror: m, Items: target})
		}
	}
	return batches
}

func writableMirror(spec *buildspec.Spec, tier string) (buildspec.Mirror, bool) {
	for _, m := range spec.Mirrors {
		if m.Tier == tier && m.Writable {
			return m, true
		}
	}
	return buildspec.Mirror{}, false
}
