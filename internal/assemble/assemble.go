package assemble

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/kilnhq/kiln/internal/artifact"
	"github.com/kilnhq/kiln/internal/paths"
)

// Input for packaging one finished build.
type Input struct {
	Product  string
	Version  string
	Platform string

	ViewDir  string // Merged install tree; rewritten in place.
	Manifest []byte // Build manifest, shipped under assets/.
	OutDir   string // Where the package archive lands.
}

// A relocatable package on disk with its content-addressed identity.
type Package struct {
	Path     string
	Artifact artifact.Artifact
}

// Assemble turns a finished build tree into a relocatable package: rewrite
// baked-in paths first, in place and before anything moves; refuse to ship
// if any build-prefix reference survives; then pack the view together with
// its module descriptor and assets.
func Assemble(in Input) (*Package, error) {
	if in.Product == "" || in.Version == "" || in.Platform == "" {
		return nil, fmt.Errorf("%w: product, version and platform are required", ErrAssemble)
	}

	buildPrefix := BuildPrefix(in.Product)
	installedView := DefaultRoot(in.Product, in.Version) + "/view"

	if err := Relocate(in.ViewDir, buildPrefix, installedView); err != nil {
		return nil, err
	}
	offenders, err := Scan(in.ViewDir, buildPrefix)
	if err != nil {
		return nil, err
	}
	if len(offenders) > 0 {
		return nil, &RelocationIncompleteError{Prefix: buildPrefix, Offenders: offenders}
	}

	moduleFile, err := renderModule(in.Product, in.Version, in.Platform)
	if err != nil {
		return nil, err
	}
	install, err := renderInstallScript(in.Product, in.Version)
	if err != nil {
		return nil, err
	}
	members := []memberFile{
		{name: path.Join(entryModule, in.Product, in.Version+".lua"), mode: int64(paths.DefaultFileMode), data: moduleFile},
		{name: path.Join(entryAssets, "install.sh"), mode: 0755, data: install},
		{name: path.Join(entryAssets, "env.sh"), mode: int64(paths.DefaultFileMode), data: renderEnvScript(in.Product, in.Version)},
	}
	if len(in.Manifest) > 0 {
		members = append(members, memberFile{
			name: path.Join(entryAssets, "manifest.yaml"),
			mode: int64(paths.DefaultFileMode),
			data: in.Manifest,
		})
	}

	if err := os.MkdirAll(in.OutDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	pkgPath := filepath.Join(in.OutDir, artifact.PackageName(in.Product, in.Version, in.Platform))
	if err := writeArchive(pkgPath, in.ViewDir, members); err != nil {
		return nil, err
	}

	art, err := artifact.FromFile(in.Product, in.Version, in.Platform, artifact.MediaTypePackage, pkgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	return &Package{Path: pkgPath, Artifact: art}, nil
}
