package buildspec

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func baseRequest() Request {
	return Request{
		Version:     "25.11",
		Toolchain:   "noble",
		Arch:        "amd64",
		CacheMode:   CacheAll,
		PublishMode: PublishNone,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	req := baseRequest()
	req.GPU = true
	req.Verify = true
	req.KeyRef = "/keys/release.asc"

	a, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("specs differ for identical requests (-first +second):\n%s", diff)
	}
}

func TestGenerate(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if spec.Platform != "noble-amd64" {
		t.Fatalf("platform = %q, want noble-amd64", spec.Platform)
	}
	if spec.Image != "docker.io/library/ubuntu:24.04" {
		t.Fatalf("image = %q, want the noble base image", spec.Image)
	}

	last := spec.Components[len(spec.Components)-1]
	if last.Name != Product || last.Version != "25.11" {
		t.Fatalf("last component = %s/%s, want %s/25.11", last.Name, last.Version, Product)
	}

	for _, c := range spec.Components {
		if c.Name != Product && c.Version == "" {
			t.Fatalf("component %s has no pinned version", c.Name)
		}
	}
}

func TestGenerateMirrorPriority(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(spec.Mirrors) != 3 {
		t.Fatalf("len(mirrors) = %d, want 3", len(spec.Mirrors))
	}

	order := []string{TierRelease, TierDeps, TierToolchain}
	for i, want := range order {
		if spec.Mirrors[i].Tier != want {
			t.Fatalf("mirrors[%d].Tier = %q, want %q", i, spec.Mirrors[i].Tier, want)
		}
	}

	release := spec.Mirrors[0]
	if !strings.Contains(release.URL, "helios-25.11-noble") {
		t.Fatalf("release URL = %q, want version and toolchain in path", release.URL)
	}
	if !release.Trusted || !release.Writable {
		t.Fatalf("release tier trusted=%v writable=%v, want both true", release.Trusted, release.Writable)
	}

	toolchain := spec.Mirrors[2]
	if toolchain.Writable {
		t.Fatal("toolchain tier must be read-only")
	}
}

func TestGenerateCacheRootOverride(t *testing.T) {
	req := baseRequest()
	req.CacheRoot = "file:///var/cache/kiln/"

	spec, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, m := range spec.Mirrors {
		if !strings.HasPrefix(m.URL, "file:///var/cache/kiln/") {
			t.Fatalf("mirror URL = %q, want file root prefix", m.URL)
		}
		if strings.Contains(m.URL, "//kiln/") {
			t.Fatalf("mirror URL = %q, trailing slash not trimmed", m.URL)
		}
	}
}

func TestGenerateUnsupportedCombination(t *testing.T) {
	req := baseRequest()
	req.Toolchain = "jammy" // 25.11 dropped jammy.

	_, err := Generate(req)
	var unsupported *UnsupportedCombinationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedCombinationError", err)
	}
	if unsupported.Version != "25.11" || unsupported.Toolchain != "jammy" {
		t.Fatalf("error names %s/%s, want 25.11/jammy", unsupported.Version, unsupported.Toolchain)
	}
	if len(unsupported.Supported) == 0 {
		t.Fatal("error carries no supported matrix")
	}
	if !strings.Contains(err.Error(), "25.11(noble,trixie)") {
		t.Fatalf("error message %q does not list valid toolchains for 25.11", err.Error())
	}
}

func TestGenerateValidation(t *testing.T) {
	mutations := map[string]func(*Request){
		"missing version":   func(r *Request) { r.Version = "" },
		"missing toolchain": func(r *Request) { r.Toolchain = "" },
		"bad arch":          func(r *Request) { r.Arch = "mips" },
		"bad cache mode":    func(r *Request) { r.CacheMode = "sometimes" },
		"bad publish mode":  func(r *Request) { r.PublishMode = "maybe" },
	}

	for name, mutate := range mutations {
		req := baseRequest()
		mutate(&req)
		if _, err := Generate(req); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestGenerateGPU(t *testing.T) {
	req := baseRequest()
	req.GPU = true

	spec, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	found := false
	for _, c := range spec.Components {
		if c.Name == "magma" {
			found = true
		}
	}
	if !found {
		t.Fatal("gpu build is missing the magma component")
	}

	target := spec.Target()
	if !hasFlag(target, "+gpu") {
		t.Fatalf("target flags = %v, want +gpu", target.Flags)
	}
}

func TestGenerateMinimal(t *testing.T) {
	req := baseRequest()
	req.Minimal = true

	spec, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, c := range spec.Components {
		if c.Name == "fftw" || c.Name == "netcdf" {
			t.Fatalf("minimal build still carries %s", c.Name)
		}
	}
	if !hasFlag(spec.Target(), "~docs") {
		t.Fatalf("target flags = %v, want ~docs", spec.Target().Flags)
	}
}

func TestGenerateSigning(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if spec.Signing.Enabled {
		t.Fatal("signing enabled without a key reference")
	}

	req := baseRequest()
	req.KeyRef = "/keys/release.asc"
	spec, err = Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !spec.Signing.Enabled || spec.Signing.KeyRef != "/keys/release.asc" {
		t.Fatalf("signing = %+v, want enabled with key ref", spec.Signing)
	}
}

func TestWithComponents(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	original := len(spec.Components)

	comps := []Component{{Name: "zlib", Version: "1.3.1", Class: ClassEmbed}}
	replaced := spec.WithComponents(comps)

	if len(replaced.Components) != 1 || replaced.Components[0].Name != "zlib" {
		t.Fatalf("replaced components = %v, want [zlib]", replaced.Components)
	}
	if len(spec.Components) != original {
		t.Fatalf("receiver components = %d, want %d untouched", len(spec.Components), original)
	}

	// The copy owns its slice: mutating the caller's must not leak in.
	comps[0].Name = "hdf5"
	if replaced.Components[0].Name != "zlib" {
		t.Fatal("replaced spec shares the caller's component slice")
	}
}

func TestEmbedded(t *testing.T) {
	spec, err := Generate(baseRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, c := range spec.Embedded() {
		if c.Class != ClassEmbed {
			t.Fatalf("Embedded returned %s with class %s", c.Name, c.Class)
		}
		if c.Name == "cmake" || c.Name == "ninja" {
			t.Fatalf("build tooling %s leaked into the embedded set", c.Name)
		}
	}
}

func hasFlag(c Component, flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
