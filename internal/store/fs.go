package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnhq/kiln/internal/paths"
)

// Local filesystem tier backend rooted at a directory. Used for the
// developer-local tier and throughout the tests; the key layout is
// identical to the object-store backends so tiers are interchangeable.
type fsStore struct {
	root string
}

func newFSStore(root string) (*fsStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: file tier URL has no path", ErrStore)
	}
	if err := os.MkdirAll(root, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return &fsStore{root: root}, nil
}

func (s *fsStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *fsStore) Stat(_ context.Context, key string) (Info, error) {
	fi, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Info{}, fmt.Errorf("%w: stat %s: %v", ErrStore, key, err)
	}
	if fi.IsDir() {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Info{Key: key, Size: fi.Size()}, nil
}

func (s *fsStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrStore, key, err)
	}
	return f, nil
}

// Writes to a temporary file in the target directory, then renames into
// place. Rename is atomic within one filesystem, so readers never see a
// partially written object.
func (s *fsStore) Put(_ context.Context, key string, r io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: put %s: size unknown", ErrStore, key)
	}

	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}
	if written != size {
		return fmt.Errorf("%w: put %s: wrote %d bytes, declared %d", ErrStore, key, written, size)
	}

	if err := tmp.Chmod(paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}
	return nil
}

func (s *fsStore) List(_ context.Context, prefix string) ([]string, error) {
	root := s.path(prefix)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrStore, prefix, err)
	}
	return keys, nil
}
