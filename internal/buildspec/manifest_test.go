package buildspec

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEncodeManifest(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	out, err := EncodeManifest(spec)
	if err != nil {
		t.Fatalf("EncodeManifest: %v", err)
	}

	var doc manifest
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("manifest does not round-trip: %v", err)
	}
	if doc.Product != Product || doc.Version != "25.11" {
		t.Fatalf("manifest names %s/%s, want %s/25.11", doc.Product, doc.Version, Product)
	}
	if len(doc.Components) != len(spec.Components) {
		t.Fatalf("manifest has %d components, want %d", len(doc.Components), len(spec.Components))
	}
	if len(doc.Mirrors) != len(spec.Mirrors) {
		t.Fatalf("manifest has %d mirrors, want %d", len(doc.Mirrors), len(spec.Mirrors))
	}
}

func TestEncodeManifestDeterministic(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	a, err := EncodeManifest(spec)
	if err != nil {
		t.Fatalf("EncodeManifest: %v", err)
	}
	b, err := EncodeManifest(spec)
	if err != nil {
		t.Fatalf("EncodeManifest: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("encoding the same spec twice produced different bytes")
	}
}

func TestEncodeManifestOmitsPolicy(t *testing.T) {
	req := baseRequest()
	req.KeyRef = "/keys/release.asc"
	req.PublishMode = PublishAll

	spec, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	out, err := EncodeManifest(spec)
	if err != nil {
		t.Fatalf("EncodeManifest: %v", err)
	}

	text := string(out)
	for _, secret := range []string{"publish", "signing", "keyref", "release.asc"} {
		if strings.Contains(strings.ToLower(text), secret) {
			t.Fatalf("manifest leaks orchestration policy %q:\n%s", secret, text)
		}
	}
}
