package buildspec

import "fmt"

// Controls which cache tiers the resolver may consult.
type CacheMode string

const (
	CacheNone CacheMode = "none" // Ignore all tiers; build everything.
	CacheDeps CacheMode = "deps" // Resolve dependencies only; always build the target.
	CacheAll  CacheMode = "all"  // Resolve every component, target included.
)

// Controls which artifacts are pushed after a successful build.
type PublishMode string

const (
	PublishNone   PublishMode = "none"   // Keep everything local.
	PublishDeps   PublishMode = "deps"   // Push dependency artifacts to their tier.
	PublishTarget PublishMode = "target" // Push the product package only.
	PublishAll    PublishMode = "all"    // Push dependencies and the product package.
)

// Describes one requested build. Immutable once constructed; the caller
// fills it from flags and environment configuration and hands it to
// [Generate].
type Request struct {
	Version   string // Product version, e.g. "25.11".
	Toolchain string // Toolchain identifier, e.g. "noble".
	Arch      string // Target CPU architecture, e.g. "amd64".

	GPU     bool // Build GPU-accelerated variants.
	Minimal bool // Prune optional components.
	Verify  bool // Require signature verification on cached artifacts.

	KeyRef    string // Armored signing key reference; empty disables signing.
	CacheRoot string // Base URL for the default mirror set; empty uses DefaultCacheRoot.

	CacheMode   CacheMode
	PublishMode PublishMode
}

// Checks structural validity: required fields present and enum values
// known. Combination support is checked separately against the build
// matrix during generation.
func (r Request) validate() error {
	if r.Version == "" {
		return fmt.Errorf("%w: version is required", ErrValidation)
	}
	if r.Toolchain == "" {
		return fmt.Errorf("%w: toolchain is required", ErrValidation)
	}

	switch r.Arch {
	case "amd64", "arm64":
	default:
		return fmt.Errorf("%w: unknown architecture %q", ErrValidation, r.Arch)
	}

	switch r.CacheMode {
	case CacheNone, CacheDeps, CacheAll:
	default:
		return fmt.Errorf("%w: unknown cache mode %q", ErrValidation, r.CacheMode)
	}

	switch r.PublishMode {
	case PublishNone, PublishDeps, PublishTarget, PublishAll:
	default:
		return fmt.Errorf("%w: unknown publish mode %q", ErrValidation, r.PublishMode)
	}

	return nil
}
