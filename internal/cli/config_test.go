package cli

import (
	"testing"

	"github.com/adrg/xdg"
)

func TestParseConfig(t *testing.T) {
	environ := []string{
		"KILN_CACHE_ROOT=s3://mirrors.example",
		"KILN_SIGNING_KEY=/etc/kiln/release.key",
		"KILN_CONTAINERD_NAMESPACE=kiln-ci",
		"KILN_S3_ENDPOINT=minio.example:9000",
		"KILN_S3_USE_SSL=true",
		"HOME=/home/ci", // unrelated variables are ignored
	}

	cfg, err := parseConfig(environ)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}

	if cfg.CacheRoot != "s3://mirrors.example" {
		t.Errorf("CacheRoot = %q, want %q", cfg.CacheRoot, "s3://mirrors.example")
	}
	if cfg.SigningKey != "/etc/kiln/release.key" {
		t.Errorf("SigningKey = %q, want %q", cfg.SigningKey, "/etc/kiln/release.key")
	}
	if cfg.ContainerdNamespace != "kiln-ci" {
		t.Errorf("ContainerdNamespace = %q, want %q", cfg.ContainerdNamespace, "kiln-ci")
	}
	if cfg.Store.Endpoint != "minio.example:9000" {
		t.Errorf("Store.Endpoint = %q, want %q", cfg.Store.Endpoint, "minio.example:9000")
	}
	if !cfg.Store.UseSSL {
		t.Error("Store.UseSSL = false, want true")
	}
}

func TestParseConfigEmptyEnvironment(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.CacheRoot != "" || cfg.SigningKey != "" || cfg.Store.Endpoint != "" {
		t.Fatalf("parseConfig(nil) = %+v, want zero config", cfg)
	}
}

func TestSigningKeyPath(t *testing.T) {
	cfg := &config{SigningKey: "/srv/keys/release.key"}
	if got := cfg.signingKeyPath(); got != "/srv/keys/release.key" {
		t.Fatalf("signingKeyPath() = %q, want %q", got, "/srv/keys/release.key")
	}

	cfg.SigningKey = ""
	if got := cfg.signingKeyPath(); got == "" {
		t.Fatal("signingKeyPath() = empty, want per-user default")
	}
}

func TestVerifyKeyPath(t *testing.T) {
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	xdg.Reload()

	var cfg config
	if got := cfg.verifyKeyPath(); got != "" {
		t.Fatalf("verifyKeyPath() with no keyring = %q, want empty", got)
	}

	cfg.VerifyKey = "/etc/kiln/trusted.pub"
	if got := cfg.verifyKeyPath(); got != "/etc/kiln/trusted.pub" {
		t.Fatalf("verifyKeyPath() = %q, want %q", got, "/etc/kiln/trusted.pub")
	}
}
