package runtime

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Builds a tar stream from entries of (name, content); directories have
// empty content and a trailing slash in the name.
func buildTar(t *testing.T, entries [][2]string) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, e := range entries {
		name, content := e[0], e[1]
		if strings.HasSuffix(name, "/") {
			if err := tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
				t.Fatalf("write dir header: %v", err)
			}
			continue
		}
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	return &buf
}

func TestUntarStripsRoot(t *testing.T) {
	dir := t.TempDir()
	stream := buildTar(t, [][2]string{
		{"view/", ""},
		{"view/bin/", ""},
		{"view/bin/solver", "#!/bin/sh"},
		{"view/lib/libz.so", "elf bytes"},
	})

	if err := untar(stream, dir, "view"); err != nil {
		t.Fatalf("untar: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "bin", "solver"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "#!/bin/sh" {
		t.Fatalf("content = %q, want #!/bin/sh", got)
	}

	if _, err := os.Stat(filepath.Join(dir, "view")); !os.IsNotExist(err) {
		t.Fatal("root component was not stripped")
	}
}

func TestUntarRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	stream := buildTar(t, [][2]string{
		{"view/../../escape", "malicious"},
	})

	if err := untar(stream, dir, "view"); err == nil {
		t.Fatal("untar accepted a path escaping the extraction root")
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape")); !os.IsNotExist(err) {
		t.Fatal("traversal entry was written outside the root")
	}
}

func TestUntarSymlink(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "view/lib/libz.so", Mode: 0o644, Size: 4}); err != nil {
		t.Fatalf("header: %v", err)
	}
	tw.Write([]byte("elf0"))
	if err := tw.WriteHeader(&tar.Header{
		Name:     "view/lib/libz.so.1",
		Typeflag: tar.TypeSymlink,
		Linkname: "libz.so",
	}); err != nil {
		t.Fatalf("symlink header: %v", err)
	}
	tw.Close()

	if err := untar(&buf, dir, "view"); err != nil {
		t.Fatalf("untar: %v", err)
	}

	link, err := os.Readlink(filepath.Join(dir, "lib", "libz.so.1"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if link != "libz.so" {
		t.Fatalf("link target = %q, want libz.so", link)
	}
}

func TestStrippedName(t *testing.T) {
	cases := []struct {
		in   string
		root string
		want string
	}{
		{"view", "view", ""},
		{"view/", "view", ""},
		{"./view/bin/solver", "view", "bin/solver"},
		{"view/bin/solver", "view", "bin/solver"},
		{"other/file", "view", "other/file"},
	}
	for _, tc := range cases {
		if got := strippedName(tc.in, tc.root); got != tc.want {
			t.Fatalf("strippedName(%q, %q) = %q, want %q", tc.in, tc.root, got, tc.want)
		}
	}
}

func TestFileTar(t *testing.T) {
	r, err := fileTar("manifest.yaml", []byte("product: helios\n"))
	if err != nil {
		t.Fatalf("fileTar: %v", err)
	}

	tr := tar.NewReader(r)
	header, err := tr.Next()
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header.Name != "manifest.yaml" {
		t.Fatalf("name = %q, want manifest.yaml", header.Name)
	}

	content, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if string(content) != "product: helios\n" {
		t.Fatalf("content = %q", content)
	}

	if _, err := tr.Next(); err != io.EOF {
		t.Fatalf("expected single-entry archive, got %v", err)
	}
}
