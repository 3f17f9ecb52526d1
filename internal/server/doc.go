// Package server implements the kiln daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the kiln CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection.
//
// Build commands run end to end through the build package, one pipeline
// goroutine per connection; status and shutdown are served inline. The
// wire protocol lives in this package because both sides of the socket
// share it.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    ContainerdAddress:   "/run/containerd/containerd.sock",
//	    ContainerdNamespace: "kiln",
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
