package cli

import (
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/store"
)

// Environment configuration shared by every command. Flags override these
// values; these override the built-in defaults.
type config struct {
	CacheRoot string `env:"KILN_CACHE_ROOT"` // Base URL for the default mirror set.

	SigningKey string `env:"KILN_SIGNING_KEY"` // Armored private key path.
	VerifyKey  string `env:"KILN_VERIFY_KEY"`  // Armored public keyring path.

	ContainerdAddress   string `env:"KILN_CONTAINERD_ADDRESS"`
	ContainerdNamespace string `env:"KILN_CONTAINERD_NAMESPACE"`

	ImageArchive string `env:"KILN_IMAGE_ARCHIVE"` // Local OCI archive for the toolchain image.
	ImageTag     string `env:"KILN_IMAGE_TAG"`     // Tag applied to the imported archive.

	Store store.Config `envPrefix:"KILN_S3_"`
}

// parseConfig parses the command configuration from the environment
// variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadConfig() (*config, error) {
	return parseConfig(os.Environ())
}

// Path of the signing key: the configured override, or the per-user
// default.
func (c *config) signingKeyPath() string {
	if c.SigningKey != "" {
		return c.SigningKey
	}
	return paths.SigningKey()
}

// Path of the verification keyring: the configured override, or the
// per-user default when one has been generated.
//
// Returns empty when no keyring exists anywhere, which disables
// signature verification and fails closed on tiers that require it.
func (c *config) verifyKeyPath() string {
	if c.VerifyKey != "" {
		return c.VerifyKey
	}
	if p := paths.VerifyKey(); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
