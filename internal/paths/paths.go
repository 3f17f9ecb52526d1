package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "kiln"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the persistent cache directory.
//
// Holds the local cache tier and the downloaded artifact staging area. Mounted
// read-write into build environments so package sources and binary downloads
// survive across builds.
//
//	Linux:   ~/.cache/kiln
//	macOS:   ~/Library/Caches/kiln
func Cache() string {
	return filepath.Join(xdg.CacheHome, toolName)
}

// Path to the local cache tier root.
//
// The local tier follows the same key layout as remote tiers, so a file://
// mirror pointed here is interchangeable with an object-store tier.
func LocalTier() string {
	return filepath.Join(Cache(), "tier")
}

// Path to the scratch directory for in-flight pipelines.
//
// Each pipeline stages its unified view and manifest here before the atomic
// commit to the output directory. Safe to delete when no pipeline is running.
func Work() string {
	return filepath.Join(Cache(), "work")
}

// Path to the directory holding finished build outputs and packages.
//
//	Linux:   ~/.local/state/kiln/out
func Output() string {
	return filepath.Join(xdg.StateHome, toolName, "out")
}

// Path to the configuration directory.
//
// Holds the signing keypair and any per-user overrides.
//
//	Linux:   ~/.config/kiln
func Config() string {
	return filepath.Join(xdg.ConfigHome, toolName)
}

// Default path to the armored signing key.
func SigningKey() string {
	return filepath.Join(Config(), "signing.key")
}

// Default path to the armored public verification key.
func VerifyKey() string {
	return filepath.Join(Config(), "signing.pub")
}

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/kiln or /run/user/<uid>/kiln
//	macOS:   ~/Library/Caches/kiln/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, toolName)
	}
	return filepath.Join(xdg.CacheHome, toolName, "run")
}

// Default path to the Unix domain socket for submitting build requests.
func Socket() string {
	return filepath.Join(Runtime(), "kiln.sock")
}

// Default path to the PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), "kiln.pid")
}
