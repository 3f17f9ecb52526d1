package pkgmgr

import (
	"context"
	"strings"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/buildspec"
)

// Executes shell commands inside the isolated build environment. The
// execution driver provides the implementation; output capture is the
// driver's concern, not the manager's.
type Runner interface {
	Run(ctx context.Context, command string) (exitCode int, err error)
}

// The package manager collaborator. Consumed as an opaque black box: it
// accepts a component specification and produces a filesystem tree, or
// answers whether a tier already holds a component's artifact.
type Manager interface {
	// Checks one tier for a component artifact. Present results carry
	// the artifact with its stored size filled in. Must not download the
	// blob or mutate the tier.
	QueryCache(ctx context.Context, mirror buildspec.Mirror, art artifact.Artifact) (bool, artifact.Artifact, error)

	// Builds one component inside the environment, installing its tree
	// under destDir. The manifest at manifestPath supplies mirrors and
	// pinned versions to the manager.
	BuildComponent(ctx context.Context, r Runner, comp buildspec.Component, manifestPath, destDir string) error

	// Verifies one freshly built component tree under destDir: the
	// manager rechecks its recorded checksums and link closure. Read-only
	// with respect to the tree.
	VerifyComponent(ctx context.Context, r Runner, comp buildspec.Component, destDir string) error
}

// Canonical component spec string understood by the manager CLI:
// name@version with variant flags appended, e.g. "hdf5@1.14.5+mpi".
func SpecString(c buildspec.Component) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString("@")
	b.WriteString(c.Version)
	for _, f := range c.Flags {
		b.WriteString(f)
	}
	return b.String()
}
