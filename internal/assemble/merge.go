package assemble

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kilnhq/kiln/internal/paths"
)

// One component's extracted install tree, in merge order.
type Tree struct {
	Name string // Component name, for conflict reports.
	Dir  string // Host directory holding the tree contents.
}

// Records a path installed by more than one component. The last writer in
// requirement order wins.
type Conflict struct {
	Path   string // View-relative path.
	Winner string // Component whose file was kept.
	Loser  string // Component whose file was overwritten.
}

// MergeView overlays the component trees into a single prefix under
// viewDir, in slice order: when two components install the same path the
// later one wins and the collision is recorded. Entries are real copies,
// never hard links, because relocation later rewrites the view in place and
// must not reach back into the source trees.
func MergeView(viewDir string, trees []Tree) ([]Conflict, error) {
	if err := os.MkdirAll(viewDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemble, err)
	}

	var conflicts []Conflict
	owners := make(map[string]string)
	for _, tree := range trees {
		if err := overlay(viewDir, tree, owners, &conflicts); err != nil {
			return nil, err
		}
	}
	return conflicts, nil
}

func overlay(viewDir string, tree Tree, owners map[string]string, conflicts *[]Conflict) error {
	err := filepath.WalkDir(tree.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(tree.Dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(viewDir, rel)

		if d.IsDir() {
			if info, err := os.Lstat(dest); err == nil && !info.IsDir() {
				if err := os.Remove(dest); err != nil {
					return err
				}
			}
			return os.MkdirAll(dest, paths.DefaultDirMode)
		}

		key := filepath.ToSlash(rel)
		if owner, taken := owners[key]; taken {
			*conflicts = append(*conflicts, Conflict{Path: key, Winner: tree.Name, Loser: owner})
		}
		owners[key] = tree.Name

		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(target, dest)
		}
		return copyFile(p, dest)
	})
	if err != nil {
		return fmt.Errorf("%w: merge %s: %v", ErrAssemble, tree.Name, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
