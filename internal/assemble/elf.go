package assemble

import (
	"bytes"
	"debug/elf"
	"fmt"
	"path/filepath"
	"strings"
)

// Rewrites DT_RPATH and DT_RUNPATH entries that reference the build prefix
// to $ORIGIN-relative form, patching the dynamic string table in place. A
// rewritten value must fit within the original; the padded build prefix
// leaves room for any plausible view depth, and anything deeper stays
// unpatched for the scan to reject.
func patchRpaths(data []byte, binPath, view, buildPrefix string) error {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		// Not parseable as ELF despite the magic. The pad patcher still
		// runs over the raw bytes.
		return nil
	}
	defer f.Close()

	dynamic := f.Section(".dynamic")
	dynstr := f.Section(".dynstr")
	if dynamic == nil || dynstr == nil {
		return nil
	}

	raw, err := dynamic.Data()
	if err != nil {
		return fmt.Errorf("read dynamic section: %v", err)
	}

	for _, off := range rpathOffsets(f, raw) {
		strOff := int(dynstr.Offset) + int(off)
		if strOff < 0 || strOff >= len(data) {
			continue
		}
		end := bytes.IndexByte(data[strOff:], 0)
		if end < 0 {
			continue
		}
		old := string(data[strOff : strOff+end])
		if !strings.Contains(old, buildPrefix) {
			continue
		}

		rewritten, err := originRelative(old, binPath, view, buildPrefix)
		if err != nil {
			return err
		}
		if len(rewritten) > len(old) {
			continue
		}
		copy(data[strOff:], rewritten)
		for j := strOff + len(rewritten); j < strOff+end; j++ {
			data[j] = 0
		}
	}
	return nil
}

// Extracts the .dynstr offsets of every DT_RPATH and DT_RUNPATH value.
func rpathOffsets(f *elf.File, dynamic []byte) []uint64 {
	var offs []uint64
	bo := f.ByteOrder

	switch f.Class {
	case elf.ELFCLASS64:
		for i := 0; i+16 <= len(dynamic); i += 16 {
			tag := elf.DynTag(bo.Uint64(dynamic[i:]))
			if tag == elf.DT_NULL {
				break
			}
			if tag == elf.DT_RPATH || tag == elf.DT_RUNPATH {
				offs = append(offs, bo.Uint64(dynamic[i+8:]))
			}
		}
	case elf.ELFCLASS32:
		for i := 0; i+8 <= len(dynamic); i += 8 {
			tag := elf.DynTag(bo.Uint32(dynamic[i:]))
			if tag == elf.DT_NULL {
				break
			}
			if tag == elf.DT_RPATH || tag == elf.DT_RUNPATH {
				offs = append(offs, uint64(bo.Uint32(dynamic[i+4:])))
			}
		}
	}
	return offs
}

// Maps one search-path value to $ORIGIN-relative form, element by element.
// Elements outside the build prefix pass through untouched.
func originRelative(rpath, binPath, view, buildPrefix string) (string, error) {
	toRoot, err := filepath.Rel(filepath.Dir(binPath), view)
	if err != nil {
		return "", err
	}

	elems := strings.Split(rpath, ":")
	for i, e := range elems {
		if !strings.HasPrefix(e, buildPrefix) {
			continue
		}
		sub := strings.TrimPrefix(e, buildPrefix)
		elems[i] = "$ORIGIN/" + filepath.ToSlash(filepath.Join(toRoot, sub))
	}
	return strings.Join(elems, ":"), nil
}
