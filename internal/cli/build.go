package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/kilnhq/kiln/internal/build"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/driver"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/pkgmgr"
	"github.com/kilnhq/kiln/internal/publish"
	"github.com/kilnhq/kiln/internal/runtime"
	"github.com/kilnhq/kiln/internal/server"
	"github.com/kilnhq/kiln/internal/store"
)

// Represents the 'kiln build' command.
type BuildCmd struct {
	Version   string `arg:"" help:"Product version, e.g. 25.11."`
	Toolchain string `help:"Toolchain identifier." default:"noble"`
	Arch      string `help:"Target CPU architecture." default:"${arch}" enum:"amd64,arm64"`

	GPU     bool `name:"gpu" help:"Build GPU-accelerated variants."`
	Minimal bool `help:"Prune optional components."`
	Verify  bool `help:"Require signature verification on all cached artifacts."`

	Cache   string `help:"Cache mode: none, deps or all." default:"all" enum:"none,deps,all"`
	Publish string `help:"Publish mode: none, deps, target or all." default:"none" enum:"none,deps,target,all"`
	Sign    bool   `help:"Sign published artifacts."`

	Remote bool `help:"Submit the build to the daemon instead of running in-process."`
}

// Executes the build command.
//
// In-process builds own their containerd connection for the duration of the
// run; remote builds submit the request to a running daemon over its socket
// and block until it answers.
func (c *BuildCmd) Run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := buildspec.Request{
		Version:     c.Version,
		Toolchain:   c.Toolchain,
		Arch:        c.Arch,
		GPU:         c.GPU,
		Minimal:     c.Minimal,
		Verify:      c.Verify,
		CacheRoot:   cfg.CacheRoot,
		CacheMode:   buildspec.CacheMode(c.Cache),
		PublishMode: buildspec.PublishMode(c.Publish),
	}
	if c.Sign {
		req.KeyRef = cfg.signingKeyPath()
	}

	if c.Remote {
		return submitBuild(ctx, req)
	}

	deps, cleanup, err := directDeps(ctx, cfg, req)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := build.Run(ctx, deps, req)
	if err != nil {
		return err
	}

	report(res)
	return nil
}

// Assembles the collaborators for an in-process build: a containerd-backed
// provisioner, the package manager CLI and the tier stores.
func directDeps(ctx context.Context, cfg *config, req buildspec.Request) (build.Deps, func(), error) {
	rt, err := runtime.New(containerdAddress(cfg), containerdNamespace(cfg))
	if err != nil {
		return build.Deps{}, nil, err
	}

	provisioner := &driver.RuntimeProvisioner{Runtime: rt}
	if cfg.ImageArchive != "" {
		tag := cfg.ImageTag
		if tag == "" {
			tag = server.DefaultImportTag
		}
		if err := rt.ImportImage(ctx, cfg.ImageArchive, tag, "linux/"+req.Arch); err != nil {
			rt.Close()
			return build.Deps{}, nil, err
		}
		provisioner.ImageOverride = tag
	}

	opener := store.NewOpener(cfg.Store)

	deps := build.Deps{
		Provisioner: provisioner,
		Manager:     pkgmgr.NewCLI("", opener),
		Opener:      opener,
		CacheDir:    paths.Cache(),
		WorkDir:     paths.Work(),
		OutputDir:   paths.Output(),
	}

	if req.KeyRef != "" {
		signer, err := publish.NewSigner(req.KeyRef)
		if err != nil {
			rt.Close()
			return build.Deps{}, nil, err
		}
		deps.Signer = signer
	}
	if p := cfg.verifyKeyPath(); p != "" {
		verifier, err := publish.NewVerifier(p)
		if err != nil {
			rt.Close()
			return build.Deps{}, nil, err
		}
		deps.Verifier = verifier
	}

	return deps, func() { rt.Close() }, nil
}

func containerdAddress(cfg *config) string {
	if cfg.ContainerdAddress != "" {
		return cfg.ContainerdAddress
	}
	return server.DefaultContainerdAddress
}

func containerdNamespace(cfg *config) string {
	if cfg.ContainerdNamespace != "" {
		return cfg.ContainerdNamespace
	}
	return server.DefaultContainerdNamespace
}

// Sends the build request to the daemon and waits for the result.
// Cancelling the context closes the connection, which aborts the remote
// pipeline at its next stage boundary.
func submitBuild(ctx context.Context, req buildspec.Request) error {
	socketPath := RootCmd.Socket
	if socketPath == "" {
		socketPath = paths.Socket()
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", socketPath, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	data, err := server.Encode(server.CmdBuild, &server.BuildRequest{Request: req})
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return err
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("connection lost while building: %w", err)
	}
	env, payload, err := server.Decode(line)
	if err != nil {
		return err
	}
	if env.Command == server.CmdError {
		res, err := server.DecodePayload[server.ErrorResult](payload)
		if err != nil {
			return err
		}
		return errors.New(res.Message)
	}

	res, err := server.DecodePayload[server.BuildResult](payload)
	if err != nil {
		return err
	}
	for _, f := range res.Failures {
		slog.Warn("publish failed", "failure", f)
	}
	for _, w := range res.Warnings {
		slog.Warn("cached artifact rejected", "warning", w)
	}
	fmt.Println(res.Package)
	return nil
}

// Prints the primary build outputs: problems as log records, the package
// path on stdout.
func report(res *build.Result) {
	for _, f := range res.Report.Failures {
		slog.Warn("publish failed", "tier", f.Tier, "key", f.Key, "error", f.Err)
	}
	fmt.Println(res.Package.Path)
}
