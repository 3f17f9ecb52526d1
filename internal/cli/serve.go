package cli

import (
	"context"
	"log/slog"

	"github.com/kilnhq/kiln/internal/publish"
	"github.com/kilnhq/kiln/internal/server"
	"github.com/kilnhq/kiln/internal/store"
)

// Represents the 'kiln serve' command.
type ServeCmd struct{}

// Executes the serve command.
//
// Starts the daemon on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a shutdown command arrives on
// the socket.
func (c *ServeCmd) Run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		SocketPath:          RootCmd.Socket,
		ContainerdAddress:   cfg.ContainerdAddress,
		ContainerdNamespace: cfg.ContainerdNamespace,
		ImageArchive:        cfg.ImageArchive,
		ImageTag:            cfg.ImageTag,
		Opener:              store.NewOpener(cfg.Store),
	}

	// Keys are optional for the daemon: requests that ask for signing are
	// rejected individually when no key was loaded.
	if p := cfg.signingKeyPath(); fileExists(p) {
		signer, err := publish.NewSigner(p)
		if err != nil {
			return err
		}
		srvCfg.Signer = signer
	}
	if p := cfg.verifyKeyPath(); p != "" {
		verifier, err := publish.NewVerifier(p)
		if err != nil {
			return err
		}
		srvCfg.Verifier = verifier
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("kiln daemon is running")

	stopped := make(chan struct{})
	go func() {
		srv.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return srv.Stop()
	case <-stopped:
		return nil
	}
}
