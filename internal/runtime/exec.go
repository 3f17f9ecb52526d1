package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Shell used to run commands inside the environment.
const defaultShell = "/bin/sh"

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Options for one command execution.
type RunOptions struct {
	Env     []string  // KEY=VALUE overrides for this execution only.
	Workdir string    // Working directory override; empty keeps the image default.
	Output  io.Writer // Combined stdout and stderr; discarded when nil.
}

// Runs a shell command inside the environment and returns its exit code.
//
// The command is passed as a single argument via "sh -c". Both output
// streams are written to opts.Output as they are produced, so long builds
// stream diagnostics instead of buffering them. A non-zero exit code is
// not an error; transport failures are.
func (e *Environment) Run(ctx context.Context, command string, opts RunOptions) (int, error) {
	pspec, err := e.buildProcessSpec(ctx, opts.Env, opts.Workdir, defaultShell, "-c", command)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	return e.execProcess(ctx, pspec, nil, out, out)
}

// Builds an OCI process spec for running a command inside the environment.
//
// A process spec defines everything needed to start a process: the command
// and arguments, environment variables, working directory, and terminal
// mode. The base values are copied from the environment's own OCI spec,
// then env and workdir are overridden if provided.
func (e *Environment) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := e.client.LoadContainer(ctx, e.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// Merges override env vars on top of a base env slice.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	return result
}

// Runs a command inside the environment, returning the exit code and
// captured stderr. Builds the process spec from args, then delegates to
// execProcess. A non-zero exit code is not treated as an error; the
// caller decides.
func (e *Environment) execCommand(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) (int, string, error) {
	pspec, err := e.buildProcessSpec(ctx, nil, "", args...)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	var stderr bytes.Buffer
	exitCode, err := e.execProcess(ctx, pspec, stdin, stdout, &stderr)
	if err != nil {
		return 0, "", err
	}
	return exitCode, stderr.String(), nil
}

// Starts a process inside the environment's running task, waits for it
// to exit, and returns the exit code.
//
// The process is attached to the task as an additional exec, not as the
// primary process. This requires the task to already be running (started
// during environment creation). Nil streams are replaced with io.Discard
// (stdout/stderr) or left disconnected (stdin).
//
// When stdin is provided, the process stdin is explicitly closed after
// the reader returns EOF so the exec process receives the EOF signal.
// This is required because the containerd shim holds both ends of the
// stdin FIFO open and will not propagate EOF on its own.
func (e *Environment) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := e.loadTask(ctx)
	if err != nil {
		return 0, err
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	// Wrap stdin to detect when the reader returns EOF.
	var stdinDone <-chan struct{}
	if stdin != nil {
		dr := newDoneReader(stdin)
		stdin = dr
		stdinDone = dr.done
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	return awaitProcess(ctx, process, stdinDone)
}

// Loads the environment's running task.
func (e *Environment) loadTask(ctx context.Context) (containerd.Task, error) {
	ctr, err := e.client.LoadContainer(ctx, e.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	return task, nil
}

// Waits for an exec process to exit and returns the exit code.
//
// The process is started, then the function blocks until it exits. If
// stdinDone is non-nil, the process stdin is closed when the channel
// fires so the exec process receives EOF. The process is always deleted
// before returning.
func awaitProcess(ctx context.Context, process containerd.Process, stdinDone <-chan struct{}) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	// Close the process stdin after the reader is exhausted. Without this
	// the shim keeps its write end of the stdin FIFO open and the exec
	// process never receives EOF.
	if stdinDone != nil {
		go func() {
			<-stdinDone
			process.CloseIO(ctx, containerd.WithStdinCloser)
		}()
	}

	exitStatus := <-statusC
	process.Delete(ctx)

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	return int(code), nil
}

// Wraps an [io.Reader] and signals when it returns [io.EOF].
//
// The done channel is closed exactly once on the first EOF, making it
// safe to observe from multiple goroutines.
type doneReader struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
}

func newDoneReader(r io.Reader) *doneReader {
	return &doneReader{r: r, done: make(chan struct{})}
}

// Delegates to the underlying reader. Closes the done channel on the
// first [io.EOF]. Non-EOF errors are returned without closing the
// channel.
func (d *doneReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err == io.EOF {
		d.once.Do(func() { close(d.done) })
	}
	return n, err
}
