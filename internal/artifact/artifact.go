package artifact

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Media types for the blobs this pipeline produces.
const (
	MediaTypePackage   = "application/vnd.kiln.package.v1.tar+gzip"
	MediaTypeComponent = "application/vnd.kiln.component.v1.tar+gzip"
)

// File name extension for detached armored signatures.
const SignatureSuffix = ".asc"

// A named, versioned, content-addressed blob. Identity is the descriptor
// digest; the key places the blob inside a tier.
type Artifact struct {
	Component string // Component name, e.g. "zlib" or the product.
	Version   string // Component version.
	Platform  string // Toolchain-arch slug, e.g. "noble-amd64".
	Name      string // Blob file name within the key directory.

	Descriptor ocispec.Descriptor
}

// Builds an artifact identity from an in-memory blob.
func FromBytes(component, version, platform, name, mediaType string, blob []byte) Artifact {
	return Artifact{
		Component: component,
		Version:   version,
		Platform:  platform,
		Name:      name,
		Descriptor: ocispec.Descriptor{
			MediaType: mediaType,
			Digest:    digest.FromBytes(blob),
			Size:      int64(len(blob)),
		},
	}
}

// Builds an artifact identity from a file on disk, streaming the digest
// so large blobs are never held in memory.
func FromFile(component, version, platform, mediaType, filePath string) (Artifact, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()

	digester := digest.Canonical.Digester()
	size, err := io.Copy(digester.Hash(), f)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	return Artifact{
		Component: component,
		Version:   version,
		Platform:  platform,
		Name:      path.Base(filePath),
		Descriptor: ocispec.Descriptor{
			MediaType: mediaType,
			Digest:    digester.Digest(),
			Size:      size,
		},
	}, nil
}

// Conventional blob file name for a component build.
func BlobName(component, version string) string {
	return fmt.Sprintf("%s-%s.tar.gz", component, version)
}

// Conventional blob file name for a relocatable package. The platform slug
// keeps package blobs apart from the component blobs of the same name and
// version, so cache probes for component trees never match a package.
func PackageName(product, version, platform string) string {
	return fmt.Sprintf("%s-%s-%s.pkg.tar.gz", product, version, platform)
}

// Object key for the blob under a tier root.
func (a Artifact) Key() string {
	return path.Join(a.Platform, a.Component, a.Version, a.Name)
}

// Object key for the detached signature sidecar.
func (a Artifact) SignatureKey() string {
	return a.Key() + SignatureSuffix
}

// Checks a blob stream against the artifact's digest. Consumes the
// reader fully.
func (a Artifact) Verify(r io.Reader) error {
	verifier := a.Descriptor.Digest.Verifier()
	if _, err := io.Copy(verifier, r); err != nil {
		return fmt.Errorf("%w: %v", ErrRead, err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: want %s", ErrDigest, a.Descriptor.Digest)
	}
	return nil
}
