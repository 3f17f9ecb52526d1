package runtime

import (
	"context"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// An isolated build environment backed by a containerd container.
type Environment struct {
	client   *containerd.Client // Containerd client for managing the environment.
	id       string             // Unique identifier, used as the containerd container ID.
	platform string             // OCI platform (e.g., "linux/amd64").
}

// A host directory attached to the environment at creation time.
// The pipeline mounts its persistent cache directories read-write so
// package sources and binary downloads survive across builds.
type Mount struct {
	Source   string // Host path; must exist before the environment starts.
	Target   string // Absolute path inside the environment.
	ReadOnly bool
}

// Returns the environment's identifier.
func (e *Environment) ID() string {
	return e.id
}

// Removes the environment and its resources.
//
// The task is killed and the container is removed from containerd along
// with its snapshot. Failures are logged, never returned: destruction
// runs in cleanup paths where a new error would mask the original one.
// After destruction the handle is invalid.
func (e *Environment) Destroy(ctx context.Context) {
	ctr, err := e.client.LoadContainer(ctx, e.id)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Warn("failed to load environment for destruction", "id", e.id, "error", err)
		}
		return
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to delete environment during destruction", "id", e.id, "error", err)
	}
}

// Creates the containerd container with the standard build configuration
// and the pipeline's mounts attached.
func (e *Environment) create(ctx context.Context, image containerd.Image, mounts []Mount) (containerd.Container, error) {
	return e.client.NewContainer(ctx, e.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(e.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(e.platform),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithMounts(ociMounts(mounts)),
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

// Starts the environment's long-running task with no attached IO.
func (e *Environment) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Removes an existing environment with this ID, if one exists.
//
// Any running task is killed and the container is deleted along with its
// snapshot. This is a no-op when no container with the ID is found.
func (e *Environment) remove(ctx context.Context) {
	existing, err := e.client.LoadContainer(ctx, e.id)
	if err != nil {
		return
	}
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	existing.Delete(ctx, containerd.WithSnapshotCleanup)
}

// Translates mounts to OCI bind mounts.
func ociMounts(mounts []Mount) []specs.Mount {
	out := make([]specs.Mount, 0, len(mounts))
	for _, m := range mounts {
		options := []string{"rbind", "rw"}
		if m.ReadOnly {
			options = []string{"rbind", "ro"}
		}
		out = append(out, specs.Mount{
			Destination: m.Target,
			Type:        "bind",
			Source:      m.Source,
			Options:     options,
		})
	}
	return out
}
