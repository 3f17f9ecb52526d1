package assemble

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/kilnhq/kiln/internal/paths"
)

// Top-level entries of the package archive. The format is exactly these
// three trees and nothing else.
const (
	entryView   = "view"
	entryModule = "module"
	entryAssets = "assets"
)

// A generated file placed inside the archive.
type memberFile struct {
	name string // Archive path, slash-separated.
	mode int64
	data []byte
}

// Fixed timestamp for every archive entry. Archiving the same tree twice
// must yield identical bytes, or republishing unchanged content would
// trip the identity conflict check on tier timestamps alone.
var archiveEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// ArchiveTree writes dir's contents as a gzipped tarball rooted at ".",
// the layout component blobs use in cache tiers.
func ArchiveTree(dir, outPath string) (err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrAssemble, cerr)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	if err := addTree(tw, dir, "."); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	return nil
}

// Writes the package archive: view/ streamed from disk plus the generated
// module descriptor and assets.
func writeArchive(pkgPath, viewDir string, generated []memberFile) (err error) {
	out, err := os.Create(pkgPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrAssemble, cerr)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	if err := addTree(tw, viewDir, entryView); err != nil {
		return err
	}
	if err := addGenerated(tw, generated); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	return nil
}

func addTree(tw *tar.Writer, dir, root string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := root
		if rel != "." {
			name = path.Join(root, filepath.ToSlash(rel))
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var linkname string
		if d.Type()&fs.ModeSymlink != 0 {
			if linkname, err = os.Readlink(p); err != nil {
				return err
			}
		}
		h, err := tar.FileInfoHeader(info, linkname)
		if err != nil {
			return err
		}
		h.Name = name
		if d.IsDir() {
			h.Name += "/"
		}
		h.Uid, h.Gid = 0, 0
		h.Uname, h.Gname = "", ""
		h.ModTime = archiveEpoch
		h.AccessTime, h.ChangeTime = time.Time{}, time.Time{}

		if err := tw.WriteHeader(h); err != nil {
			return err
		}
		if h.Typeflag != tar.TypeReg {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: pack %s: %v", ErrAssemble, root, err)
	}
	return nil
}

func addGenerated(tw *tar.Writer, members []memberFile) error {
	seen := make(map[string]bool)
	for _, m := range members {
		for _, dir := range parentDirs(m.name) {
			if seen[dir] {
				continue
			}
			seen[dir] = true
			h := &tar.Header{
				Typeflag: tar.TypeDir,
				Name:     dir + "/",
				Mode:     int64(paths.DefaultDirMode),
				ModTime:  archiveEpoch,
			}
			if err := tw.WriteHeader(h); err != nil {
				return fmt.Errorf("%w: %v", ErrAssemble, err)
			}
		}

		h := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     m.name,
			Mode:     m.mode,
			Size:     int64(len(m.data)),
			ModTime:  archiveEpoch,
		}
		if err := tw.WriteHeader(h); err != nil {
			return fmt.Errorf("%w: %v", ErrAssemble, err)
		}
		if _, err := tw.Write(m.data); err != nil {
			return fmt.Errorf("%w: %v", ErrAssemble, err)
		}
	}
	return nil
}

func parentDirs(name string) []string {
	var dirs []string
	for dir := path.Dir(name); dir != "." && dir != "/"; dir = path.Dir(dir) {
		dirs = append([]string{dir}, dirs...)
	}
	return dirs
}
