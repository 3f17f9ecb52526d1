package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
)

const (

	// Snapshotter used for environment filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges (no mount(2)),
	// allowing kiln to run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running environments.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides image and environment
// operations.
type Runtime struct {
	client *containerd.Client // Containerd client for managing environments and images.
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(address, namespace string) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	return &Runtime{client: client}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Makes sure the image is present and unpacked for the target platform.
//
// An image already in the content store is unpacked into the snapshotter
// if needed; otherwise it is pulled from its registry. Pulls are the slow
// path of provisioning and respect context cancellation.
func (rt *Runtime) EnsureImage(ctx context.Context, ref, platform string) error {
	p, err := platforms.Parse(platform)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	if _, err := rt.client.ImageService().Get(ctx, ref); err == nil {
		if err := rt.unpackImage(ctx, ref, platform); err != nil {
			return fmt.Errorf("%w: %v", ErrRuntime, err)
		}
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	slog.Info("pulling image", "ref", ref, "platform", platform)

	_, err = rt.client.Pull(ctx, ref,
		containerd.WithPlatformMatcher(platforms.Only(p)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	)
	if err != nil {
		return fmt.Errorf("%w: pull %s: %v", ErrRuntime, ref, err)
	}

	slog.Debug("image pulled", "ref", ref)
	return nil
}

// Imports an OCI archive, tags it under the given name, and unpacks it
// for the target platform.
//
// Used for air-gapped toolchain images that cannot be pulled. The archive
// is imported into the content store, tagged, and its layers are unpacked
// into the snapshotter.
func (rt *Runtime) ImportImage(ctx context.Context, path, tag, platform string) error {
	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	if err := rt.unpackImage(ctx, tag, platform); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	slog.Debug("image imported", "tag", tag)
	return nil
}

// Creates an isolated build environment from a previously ensured image.
//
// Any stale environment with the same ID is cleaned up first. The
// environment starts a long-running task so subsequent Run calls have a
// process to attach to, with the given directories bind-mounted before
// the task starts.
func (rt *Runtime) CreateEnvironment(ctx context.Context, ref, id, platform string, mounts []Mount) (*Environment, error) {
	e := &Environment{
		client:   rt.client,
		id:       id,
		platform: platform,
	}

	// Remove any stale environment from a previous build with the same ID.
	e.remove(ctx)

	image, err := rt.resolveImage(ctx, ref, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	ctr, err := e.create(ctx, image, mounts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	if err := e.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	slog.Debug("environment started", "id", id, "image", ref)

	return e, nil
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. Multi-platform archives
// are supported (single OCI index with per-platform manifests).
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	// Import returns one record per image in the archive's index.json.
	// A multi-platform archive has a single entry (an OCI index that
	// internally references per-platform manifests). Multiple records
	// would mean multiple unrelated images, which we don't support.
	if len(imported) == 0 {
		return images.Image{}, ErrEmptyArchive
	} else if len(imported) > 1 {
		return images.Image{}, ErrMultipleImages
	}

	return imported[0], nil
}

// Tags an imported image under a deterministic name.
//
// Updates the tag if it already exists. Removes the source record when
// its name differs from the tag to avoid duplicates.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Unpacks the image layers for the target platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, ref, platform string) error {
	image, err := rt.resolveImage(ctx, ref, platform)
	if err != nil {
		return err
	}

	return image.Unpack(ctx, snapshotter)
}

// Looks up an image and selects the manifest for the given platform.
//
// Multi-platform images contain manifests for multiple architectures.
// This method selects one, so that subsequent operations target the
// correct architecture.
func (rt *Runtime) resolveImage(ctx context.Context, ref, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Produces a containerd image tag from an archive path.
//
// The path is hashed to produce a tag that is always valid for OCI
// references regardless of which characters the path contains.
func ImageTag(path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("import/%s:latest", hex.EncodeToString(h[:]))
}
