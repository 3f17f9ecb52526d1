package runtime

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnhq/kiln/internal/paths"
)

// Copies a directory tree out of the environment into a host directory.
//
// The tree at envPath is streamed out as a tar archive and unpacked under
// hostDir, preserving file modes and symlinks. The archive root (the base
// name of envPath) is stripped, so hostDir receives the tree's contents
// directly.
func (e *Environment) Extract(ctx context.Context, envPath, hostDir string) error {
	if err := os.MkdirAll(hostDir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		err := e.CopyFrom(ctx, pw, envPath)
		pw.CloseWithError(err)
		errc <- err
	}()

	untarErr := untar(pr, hostDir, filepath.Base(envPath))

	// Drain so the archiving goroutine never blocks on a full pipe.
	io.Copy(io.Discard, pr)

	if err := <-errc; err != nil {
		return err
	}
	if untarErr != nil {
		return fmt.Errorf("%w: extract %s: %v", ErrRuntime, envPath, untarErr)
	}
	return nil
}

// Unpacks a tar stream into dir, stripping the leading root component.
//
// Entry names are cleaned and verified to stay inside dir; entries that
// would escape (absolute paths, ".." traversal) are rejected. Regular
// files, directories, symlinks, and hard links are materialized; other
// entry types are skipped.
func untar(r io.Reader, dir, root string) error {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := strippedName(header.Name, root)
		if name == "" {
			continue
		}

		target, err := securePath(dir, name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0o700); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
				return err
			}
			if err := writeRegular(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}

		case tar.TypeLink:
			linked, err := securePath(dir, strippedName(header.Linkname, root))
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(linked, target); err != nil {
				return err
			}
		}
	}
}

// Removes the archive's root component from an entry name.
func strippedName(name, root string) string {
	name = filepath.ToSlash(filepath.Clean(name))
	name = strings.TrimPrefix(name, "./")

	if name == root || name == "." {
		return ""
	}
	return strings.TrimPrefix(name, root+"/")
}

// Joins an entry name onto dir, rejecting names that escape it.
func securePath(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty entry name")
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes extraction root", name)
	}
	return target, nil
}

func writeRegular(target string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
