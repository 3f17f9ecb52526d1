package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/internal/build"
)

// Handles a build command.
//
// Decodes the build request and runs it end to end: spec generation, cache
// resolution, the pipeline, assembly and publishing. The request context
// is cancelled when the client disconnects, which aborts the pipeline at
// the next stage boundary.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	result, err := build.Run(ctx, s.deps, req.Request)
	if err != nil {
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, CmdOK, buildResult(result))
}

// Flattens a build result into its wire shape.
func buildResult(res *build.Result) *BuildResult {
	out := &BuildResult{
		Package:   res.Package.Path,
		Output:    res.Output.Dir,
		Published: res.Report.Published,
		Skipped:   res.Report.Skipped,
	}
	for _, f := range res.Report.Failures {
		out.Failures = append(out.Failures, fmt.Sprintf("%s/%s: %v", f.Tier, f.Key, f.Err))
	}
	for _, w := range res.Output.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return out
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, CmdOK, &StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}
