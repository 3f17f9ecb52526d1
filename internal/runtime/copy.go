package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/kilnhq/kiln/internal/paths"
)

// Creates a directory inside the environment, including parents.
func (e *Environment) MkdirAll(ctx context.Context, path string) error {
	return e.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", path)
}

// Copies a tar stream into the environment's filesystem.
//
// The contents of r are extracted into destDir by piping them to
// "tar xf - -C destDir" inside the environment.
func (e *Environment) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return e.mustExec(ctx, "tar extract", r, nil, "tar", "xf", "-", "-C", destDir)
}

// Copies a path from the environment's filesystem as a tar stream.
//
// The file or directory at path is archived by running "tar cf - -C <dir>
// <base>" inside the environment and streaming the output to w.
func (e *Environment) CopyFrom(ctx context.Context, w io.Writer, path string) error {
	return e.mustExec(ctx, "tar archive", nil, w, "tar", "cf", "-", "-C", filepath.Dir(path), filepath.Base(path))
}

// Writes a file inside the environment, creating parent directories.
//
// The content is wrapped in a single-entry tar stream and extracted at
// the destination, so no shell quoting of the content is ever needed.
func (e *Environment) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := e.MkdirAll(ctx, filepath.Dir(path)); err != nil {
		return err
	}

	archive, err := fileTar(filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	return e.CopyTo(ctx, archive, filepath.Dir(path))
}

// Helper method that runs a command inside the environment, returning an
// error that includes desc if the process exits with a non-zero code.
func (e *Environment) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	exitCode, stderr, err := e.execCommand(ctx, stdin, stdout, args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s failed with exit code %d (%s)", ErrRuntime, desc, exitCode, stderr)
	}
	return nil
}

// Builds an in-memory tar stream holding one regular file.
func fileTar(name string, data []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Name: name,
		Mode: int64(paths.DefaultFileMode),
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	return &buf, nil
}
