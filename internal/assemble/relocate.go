package assemble

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Window scanned for a terminating NUL when patching strings inside binary
// data.
const maxCString = 4096

// Rewrites every build-prefix reference under viewDir so the tree works
// from any install root. ELF search paths become $ORIGIN-relative, strings
// inside other binary data are patched in place against installedView, text
// files are rewritten outright, symlink targets are repointed into the
// view. Runs before packaging; every change happens in place.
func Relocate(viewDir, buildPrefix, installedView string) error {
	view, err := filepath.Abs(viewDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssemble, err)
	}

	err = filepath.WalkDir(view, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			return relinkIntoView(p, view, buildPrefix)
		case d.Type().IsRegular():
			return rewriteFile(p, view, buildPrefix, installedView)
		default:
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("%w: relocate: %v", ErrAssemble, err)
	}
	return nil
}

// Scan reports every file under viewDir that still contains the build
// prefix. A non-empty result means the tree is not relocatable.
func Scan(viewDir, buildPrefix string) ([]string, error) {
	needle := []byte(buildPrefix)
	var offenders []string

	err := filepath.WalkDir(viewDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(viewDir, p)
		if err != nil {
			return err
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			if strings.Contains(target, buildPrefix) {
				offenders = append(offenders, filepath.ToSlash(rel))
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if bytes.Contains(data, needle) {
			offenders = append(offenders, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrAssemble, err)
	}
	return offenders, nil
}

func rewriteFile(p, view, buildPrefix, installedView string) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	old := []byte(buildPrefix)
	if !bytes.Contains(data, old) {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return err
	}

	switch {
	case isELF(data):
		if err := patchRpaths(data, p, view, buildPrefix); err != nil {
			return fmt.Errorf("%s: %v", p, err)
		}
		padPatch(data, old, []byte(installedView))
	case isBinary(data):
		padPatch(data, old, []byte(installedView))
	default:
		data = bytes.ReplaceAll(data, old, []byte(installedView))
	}
	return os.WriteFile(p, data, info.Mode().Perm())
}

// Replaces old with new inside NUL-terminated string data without moving
// surrounding bytes: the tail of the enclosing string shifts left and the
// freed bytes are zeroed. Occurrences with no terminator in range are left
// alone for the scan to reject. Requires len(new) <= len(old), which the
// padded build prefix guarantees.
func padPatch(data, old, new []byte) {
	if len(new) > len(old) {
		return
	}
	for from := 0; ; {
		i := bytes.Index(data[from:], old)
		if i < 0 {
			return
		}
		i += from

		limit := i + maxCString
		if limit > len(data) {
			limit = len(data)
		}
		rel := bytes.IndexByte(data[i:limit], 0)
		if rel < 0 {
			from = i + len(old)
			continue
		}
		term := i + rel

		tail := append([]byte(nil), data[i+len(old):term]...)
		n := copy(data[i:], new)
		n += copy(data[i+n:], tail)
		for j := i + n; j < term; j++ {
			data[j] = 0
		}
		from = i + n
	}
}

func relinkIntoView(link, view, buildPrefix string) error {
	target, err := os.Readlink(link)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(target, buildPrefix) {
		return nil
	}
	sub := strings.TrimPrefix(target, buildPrefix)
	rel, err := filepath.Rel(filepath.Dir(link), filepath.Join(view, sub))
	if err != nil {
		return err
	}
	if err := os.Remove(link); err != nil {
		return err
	}
	return os.Symlink(rel, link)
}

func isELF(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x7f && data[1] == 'E' && data[2] == 'L' && data[3] == 'F'
}

// Treats content with a NUL byte near the front as binary, the same
// heuristic git uses.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}
