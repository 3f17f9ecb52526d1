package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	goruntime "runtime"
	"strconv"
	"sync"
	"time"

	"github.com/kilnhq/kiln/internal/build"
	"github.com/kilnhq/kiln/internal/driver"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/pkgmgr"
	"github.com/kilnhq/kiln/internal/publish"
	"github.com/kilnhq/kiln/internal/retry"
	"github.com/kilnhq/kiln/internal/runtime"
	"github.com/kilnhq/kiln/internal/store"
)

const (

	// Default containerd socket address.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and environments.
	DefaultContainerdNamespace = "kiln"

	// Tag applied to toolchain images imported from local archives when no
	// explicit tag is configured.
	DefaultImportTag = "kiln.local/toolchain:imported"

	// Group name used to grant socket access. Members of this group can
	// connect to the daemon socket without owning the process.
	socketGroup = "kiln"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660
)

// Holds server configuration.
type Config struct {
	SocketPath          string // Override for the Unix socket path. Empty uses the default.
	ContainerdAddress   string // Containerd socket address. Empty uses [DefaultContainerdAddress].
	ContainerdNamespace string // Containerd namespace for images and environments. Empty uses [DefaultContainerdNamespace].

	// ImageArchive is a local OCI archive to import at startup; its tag
	// then overrides the registry reference of every build. For air-gapped
	// hosts that cannot pull. Empty pulls by tag.
	ImageArchive string
	ImageTag     string // Tag for the imported archive. Empty uses [DefaultImportTag].

	Opener   store.Opener    // Tier store opener. Nil uses anonymous defaults.
	Signer   *publish.Signer // Nil rejects signing requests.
	Verifier driver.Verifier // Nil fails closed on tiers requiring verification.

	Retry    retry.Policy
	Timeouts driver.Timeouts

	CacheDir  string // Empty uses paths.Cache().
	WorkDir   string // Empty uses paths.Work().
	OutputDir string // Empty uses paths.Output().
}

// Listens on a Unix domain socket and runs build requests.
type Server struct {
	socketPath string           // Path to the Unix socket file.
	runtime    *runtime.Runtime // Containerd-backed environment runtime.
	deps       build.Deps       // Collaborators shared by every build.
	listener   net.Listener     // Listener for incoming connections.
	startedAt  time.Time        // Timestamp when the server started.
	builds     int              // Total number of build commands processed.
	done       chan struct{}    // Channel to signal server shutdown.
	stopOnce   sync.Once        // Guards Stop; reachable from signals and the socket.
	mu         sync.Mutex       // Mutex to protect shared state.
}

// Creates a new server instance connected to containerd.
//
// The socket is not opened until [Start] is called.
func New(cfg Config) (*Server, error) {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = paths.Socket()
	}

	containerdAddress := cfg.ContainerdAddress
	if containerdAddress == "" {
		containerdAddress = DefaultContainerdAddress
	}

	containerdNamespace := cfg.ContainerdNamespace
	if containerdNamespace == "" {
		containerdNamespace = DefaultContainerdNamespace
	}

	opener := cfg.Opener
	if opener == nil {
		opener = store.NewOpener(store.Config{})
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = paths.Cache()
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = paths.Work()
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = paths.Output()
	}

	rt, err := runtime.New(containerdAddress, containerdNamespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}

	imageOverride := ""
	if cfg.ImageArchive != "" {
		tag := cfg.ImageTag
		if tag == "" {
			tag = DefaultImportTag
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := rt.ImportImage(ctx, cfg.ImageArchive, tag, "linux/"+goruntime.GOARCH); err != nil {
			rt.Close()
			return nil, fmt.Errorf("%w: %v", ErrServer, err)
		}
		imageOverride = tag
	}

	deps := build.Deps{
		Provisioner: &driver.RuntimeProvisioner{Runtime: rt, ImageOverride: imageOverride},
		Manager:     pkgmgr.NewCLI("", opener),
		Opener:      opener,
		Signer:      cfg.Signer,
		Verifier:    cfg.Verifier,
		Retry:       cfg.Retry,
		Timeouts:    cfg.Timeouts,
		CacheDir:    cacheDir,
		WorkDir:     workDir,
		OutputDir:   outputDir,
	}

	return newServer(socketPath, rt, deps), nil
}

func newServer(socketPath string, rt *runtime.Runtime, deps build.Deps) *Server {
	return &Server{
		socketPath: socketPath,
		runtime:    rt,
		deps:       deps,
		done:       make(chan struct{}),
	}
}

// Opens the Unix socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if err := writePID(); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("server listening on socket", "path", s.socketPath)

	go s.accept()
	return nil
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and applies permissions.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %v", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Restricts socket access to owner and group. The daemon does not run as
// root; any user in the kiln group can also connect.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: failed to chmod socket %s: %v", ErrServer, socketPath, err)
	}

	if g, err := user.LookupGroup(socketGroup); err == nil {
		if gid, err := strconv.Atoi(g.Gid); err == nil {
			if err := os.Chown(socketPath, -1, gid); err != nil {
				slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
			}
		}
	} else {
		slog.Warn("socket group not found, socket accessible to owner only", "group", socketGroup)
	}

	return nil
}

// Shuts down the server and cleans up resources. Safe to call more than
// once: a socket-delivered shutdown can race the signal handler.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		// Files go first so Wait never returns while the stale socket is
		// still on disk; done closes before the listener so the accept
		// loop sees the shutdown, not an error.
		os.Remove(s.socketPath)
		os.Remove(paths.PIDFile())

		close(s.done)

		if s.listener != nil {
			s.listener.Close()
		}

		if s.runtime != nil {
			s.runtime.Close()
		}
	})
	return nil
}

// Blocks until the server stops.
func (s *Server) Wait() {
	<-s.done
}

// Accepts connections in a loop until the server shuts down. Each
// connection is served on its own goroutine, so concurrent build requests
// run as independent pipelines.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		go s.handle(conn)
	}
}

// Processes a single connection.
//
// Reads one newline-delimited JSON message, dispatches the command, and
// writes the response. The connection is closed after one exchange.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes(byte(10))
	if err != nil {
		slog.Error("read error", "error", err)
		return
	}

	env, payload, err := Decode(line)
	if err != nil {
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	slog.Info("command received", "command", env.Command)

	ctx, cancel := contextWithDisconnect(context.Background(), reader)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, payload)
}

// Routes a command to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd Command, payload json.RawMessage) {
	switch cmd {
	case CmdBuild:
		s.handleBuild(ctx, conn, payload)
	case CmdStatus:
		s.handleStatus(conn)
	case CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respond(conn, CmdError, &ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Writes a JSON envelope response to the connection.
func (s *Server) respond(conn net.Conn, cmd Command, payload any) {
	data, err := Encode(cmd, payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		return
	}
	data = append(data, byte(10))
	conn.Write(data)
}

// Writes the daemon PID to the PID file so the CLI can detect whether the
// daemon is already running and send it signals.
func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(paths.PIDFile(), []byte(fmt.Sprintf("%d", os.Getpid())), paths.DefaultFileMode)
}

// Returns a derived context that is cancelled when the remote end of the
// connection closes.
//
// Detection works by reading from r in a background goroutine. The read blocks
// until the peer closes the connection, at which point it returns an error and
// the derived context is cancelled. The caller must ensure that no further data
// is expected on r for the lifetime of the returned context. If data arrives
// unexpectedly, it will be discarded and the context will be cancelled
// prematurely. The returned [context.CancelFunc] must always be called to
// release resources, even if the connection closes on its own.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		buf := make([]byte, 1)
		r.Read(buf)
		cancel()
	}()

	return ctx, cancel
}
