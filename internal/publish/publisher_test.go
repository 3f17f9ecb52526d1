package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/store"
)

func testItem(t *testing.T, content string) Item {
	t.Helper()
	p := filepath.Join(t.TempDir(), "zlib-1.3.1.tar.gz")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return Item{
		Artifact: artifact.FromBytes("zlib", "1.3.1", "noble-amd64",
			"zlib-1.3.1.tar.gz", artifact.MediaTypeComponent, []byte(content)),
		Path: p,
	}
}

func testMirror(t *testing.T, tier string) buildspec.Mirror {
	t.Helper()
	return buildspec.Mirror{Tier: tier, URL: "file://" + t.TempDir(), Trusted: true, Writable: true}
}

func testSigner(t *testing.T) (*Signer, *Verifier) {
	t.Helper()
	kp := testKeyPair(t)
	signer, err := ReadSigner(bytes.NewReader(kp.Private))
	if err != nil {
		t.Fatalf("ReadSigner: %v", err)
	}
	verifier, err := ReadVerifier(bytes.NewReader(kp.Public))
	if err != nil {
		t.Fatalf("ReadVerifier: %v", err)
	}
	return signer, verifier
}

func readObject(t *testing.T, open store.Opener, m buildspec.Mirror, key string) []byte {
	t.Helper()
	st, err := open(m.URL)
	if err != nil {
		t.Fatalf("open tier: %v", err)
	}
	rc, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func TestPublishWritesBlobAndSignature(t *testing.T) {
	open := store.NewOpener(store.Config{})
	signer, verifier := testSigner(t)
	mirror := testMirror(t, buildspec.TierRelease)
	item := testItem(t, "blob-content")

	report, err := NewPublisher(open, signer).Publish(context.Background(),
		[]buildspec.Mirror{mirror}, []Item{item})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !report.Ok() {
		t.Fatalf("failures = %v, want none", report.Failures)
	}
	want := buildspec.TierRelease + "/" + item.Artifact.Key()
	if len(report.Published) != 1 || report.Published[0] != want {
		t.Fatalf("published = %v, want [%s]", report.Published, want)
	}

	blob := readObject(t, open, mirror, item.Artifact.Key())
	if string(blob) != "blob-content" {
		t.Fatalf("stored blob = %q, want %q", blob, "blob-content")
	}
	sig := readObject(t, open, mirror, item.Artifact.SignatureKey())
	if err := verifier.Verify(bytes.NewReader(blob), sig); err != nil {
		t.Fatalf("stored signature does not verify: %v", err)
	}
}

func TestPublishUnsignedSkipsSidecar(t *testing.T) {
	open := store.NewOpener(store.Config{})
	mirror := testMirror(t, buildspec.TierDeps)
	item := testItem(t, "blob-content")

	report, err := NewPublisher(open, nil).Publish(context.Background(),
		[]buildspec.Mirror{mirror}, []Item{item})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !report.Ok() {
		t.Fatalf("failures = %v, want none", report.Failures)
	}

	st, err := open(mirror.URL)
	if err != nil {
		t.Fatalf("open tier: %v", err)
	}
	if _, err := st.Stat(context.Background(), item.Artifact.SignatureKey()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("signature sidecar written for unsigned publish: %v", err)
	}
}

func TestPublishIdempotent(t *testing.T) {
	open := store.NewOpener(store.Config{})
	signer, _ := testSigner(t)
	mirror := testMirror(t, buildspec.TierDeps)
	item := testItem(t, "same-bytes")
	pub := NewPublisher(open, signer)

	if _, err := pub.Publish(context.Background(), []buildspec.Mirror{mirror}, []Item{item}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	report, err := pub.Publish(context.Background(), []buildspec.Mirror{mirror}, []Item{item})
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}

	if !report.Ok() {
		t.Fatalf("failures = %v, want none", report.Failures)
	}
	if len(report.Published) != 0 {
		t.Fatalf("published = %v, want none on republish", report.Published)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("skipped = %v, want the republished key", report.Skipped)
	}

	st, err := open(mirror.URL)
	if err != nil {
		t.Fatalf("open tier: %v", err)
	}
	keys, err := st.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("stored objects = %v, want blob and signature only", keys)
	}
}

func TestPublishIdentityConflict(t *testing.T) {
	tests := []struct {
		name     string
		existing string
	}{
		{name: "different size", existing: "something much longer than the item"},
		{name: "same size different bytes", existing: "same-size!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open := store.NewOpener(store.Config{})
			mirror := testMirror(t, buildspec.TierDeps)
			item := testItem(t, "same-size?")

			st, err := open(mirror.URL)
			if err != nil {
				t.Fatalf("open tier: %v", err)
			}
			err = st.Put(context.Background(), item.Artifact.Key(),
				strings.NewReader(tt.existing), int64(len(tt.existing)))
			if err != nil {
				t.Fatalf("seed existing object: %v", err)
			}

			report, err := NewPublisher(open, nil).Publish(context.Background(),
				[]buildspec.Mirror{mirror}, []Item{item})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if len(report.Failures) != 1 {
				t.Fatalf("failures = %v, want exactly one conflict", report.Failures)
			}
			var conflict *IdentityConflictError
			if !errors.As(report.Failures[0].Err, &conflict) {
				t.Fatalf("failure = %v, want IdentityConflictError", report.Failures[0].Err)
			}

			got := readObject(t, open, mirror, item.Artifact.Key())
			if string(got) != tt.existing {
				t.Fatalf("existing object replaced: %q", got)
			}
		})
	}
}

func TestPublishBestEffortAcrossTiers(t *testing.T) {
	open := store.NewOpener(store.Config{})
	bad := buildspec.Mirror{Tier: buildspec.TierDeps, URL: "bogus://nowhere", Trusted: true, Writable: true}
	good := testMirror(t, buildspec.TierRelease)
	item := testItem(t, "content")

	report, err := NewPublisher(open, nil).Publish(context.Background(),
		[]buildspec.Mirror{bad, good}, []Item{item})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(report.Failures) != 1 || report.Failures[0].Tier != buildspec.TierDeps {
		t.Fatalf("failures = %v, want one on the dependencies tier", report.Failures)
	}
	if len(report.Published) != 1 {
		t.Fatalf("published = %v, want the release tier write to proceed", report.Published)
	}
}

func TestPublishSkipsReadOnlyMirror(t *testing.T) {
	open := store.NewOpener(store.Config{})
	mirror := testMirror(t, buildspec.TierToolchain)
	mirror.Writable = false
	item := testItem(t, "content")

	report, err := NewPublisher(open, nil).Publish(context.Background(),
		[]buildspec.Mirror{mirror}, []Item{item})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(report.Published)+len(report.Skipped)+len(report.Failures) != 0 {
		t.Fatalf("report = %+v, want untouched read-only tier", report)
	}
}

// Republishing identical content with signing enabled must backfill a
// missing signature sidecar.
func TestPublishBackfillsSignature(t *testing.T) {
	open := store.NewOpener(store.Config{})
	signer, verifier := testSigner(t)
	mirror := testMirror(t, buildspec.TierDeps)
	item := testItem(t, "content")

	if _, err := NewPublisher(open, nil).Publish(context.Background(),
		[]buildspec.Mirror{mirror}, []Item{item}); err != nil {
		t.Fatalf("unsigned publish: %v", err)
	}
	report, err := NewPublisher(open, signer).Publish(context.Background(),
		[]buildspec.Mirror{mirror}, []Item{item})
	if err != nil {
		t.Fatalf("signed republish: %v", err)
	}
	if !report.Ok() || len(report.Skipped) != 1 {
		t.Fatalf("report = %+v, want clean skip", report)
	}

	sig := readObject(t, open, mirror, item.Artifact.SignatureKey())
	if err := verifier.Verify(strings.NewReader("content"), sig); err != nil {
		t.Fatalf("backfilled signature does not verify: %v", err)
	}
}

func TestRoute(t *testing.T) {
	spec := &buildspec.Spec{
		Mirrors: []buildspec.Mirror{
			{Tier: buildspec.TierRelease, URL: "s3://kiln-artifacts/helios-25.11-noble", Trusted: true, Writable: true},
			{Tier: buildspec.TierDeps, URL: "s3://kiln-artifacts/deps-noble", Trusted: true, Writable: true},
			{Tier: buildspec.TierToolchain, URL: "s3://kiln-artifacts/toolchain-noble", Trusted: false, Writable: false},
		},
	}
	deps := []Item{{}, {}}
	target := []Item{{}}

	tests := []struct {
		mode      buildspec.PublishMode
		wantTiers []string
	}{
		{buildspec.PublishNone, nil},
		{buildspec.PublishDeps, []string{buildspec.TierDeps}},
		{buildspec.PublishTarget, []string{buildspec.TierRelease}},
		{buildspec.PublishAll, []string{buildspec.TierDeps, buildspec.TierRelease}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			spec.PublishMode = tt.mode
			batches := Route(spec, deps, target)
			if len(batches) != len(tt.wantTiers) {
				t.Fatalf("batches = %d, want %d", len(batches), len(tt.wantTiers))
			}
			for i, tier := range tt.wantTiers {
				if batches[i].Mirror.Tier != tier {
					t.Fatalf("batch %d tier = %s, want %s", i, batches[i].Mirror.Tier, tier)
				}
			}
		})
	}
}
