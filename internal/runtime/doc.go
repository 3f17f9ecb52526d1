// Package runtime manages isolated build environments backed by containerd.
//
// A [Runtime] connects to a containerd daemon and acquires base images,
// either pulled by reference or imported from local OCI archives. An
// [Environment] is a disposable container created from a base image with
// the pipeline's cache directories bind-mounted in. Commands run inside it
// as execs against a long-running task, files move in and out as tar
// streams, and component trees are extracted to the host at the end of a
// build. Destroying the environment releases its task and snapshot;
// destruction is logged, never propagated, so it can run in cleanup paths.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "kiln")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	if err := rt.EnsureImage(ctx, image, "linux/amd64"); err != nil {
//	    return err
//	}
//
//	env, err := rt.CreateEnvironment(ctx, image, "kiln-build-1", "linux/amd64", mounts)
//	if err != nil {
//	    return err
//	}
//	defer env.Destroy(ctx)
//
//	exit, err := env.Run(ctx, "hpkg build zlib@1.3.1", runtime.RunOptions{Output: log})
package runtime
