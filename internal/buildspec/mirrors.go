package buildspec

import (
	"fmt"
	"strings"
)

// Default base URL for the standard mirror set. Overridable per request
// via [Request.CacheRoot]; file:// roots are accepted for local tiers.
const DefaultCacheRoot = "s3://kiln-artifacts"

// Tier names, ordered by probe priority. The release tier is the
// narrowest (exact product version and toolchain), the dependency tier is
// shared toolchain-wide, and the toolchain tier carries prebuilt tooling.
const (
	TierRelease   = "final-artifact"
	TierDeps      = "dependencies"
	TierToolchain = "platform-toolchain"
)

// References one cache tier. Slice position in [Spec.Mirrors] is probe
// priority: index zero is consulted first.
type Mirror struct {
	Tier     string `yaml:"tier"`    // Tier name, one of the Tier constants.
	URL      string `yaml:"url"`     // Tier root; keys are resolved beneath it.
	Trusted  bool   `yaml:"trusted"` // Signatures are required for artifacts from this tier.
	Writable bool   `yaml:"-"`       // Publishing to this tier is permitted.
}

// Builds the default mirror list for a request, narrowest tier first.
// The toolchain tier is read-only: its content is provisioned out of band
// and builds must never push to it.
func defaultMirrors(root, version, toolchain string) []Mirror {
	root = strings.TrimSuffix(root, "/")
	return []Mirror{
		{
			Tier:     TierRelease,
			URL:      fmt.Sprintf("%s/%s-%s-%s", root, Product, version, toolchain),
			Trusted:  true,
			Writable: true,
		},
		{
			Tier:     TierDeps,
			URL:      fmt.Sprintf("%s/deps-%s", root, toolchain),
			Trusted:  true,
			Writable: true,
		},
		{
			Tier:     TierToolchain,
			URL:      fmt.Sprintf("%s/toolchain-%s", root, toolchain),
			Trusted:  false,
			Writable: false,
		},
	}
}
