package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyLayout(t *testing.T) {
	a := FromBytes("zlib", "1.3.1", "noble-amd64", "zlib-1.3.1.tar.gz", MediaTypeComponent, []byte("blob"))

	if a.Key() != "noble-amd64/zlib/1.3.1/zlib-1.3.1.tar.gz" {
		t.Fatalf("key = %q, want noble-amd64/zlib/1.3.1/zlib-1.3.1.tar.gz", a.Key())
	}
	if a.SignatureKey() != a.Key()+".asc" {
		t.Fatalf("signature key = %q, want %q", a.SignatureKey(), a.Key()+".asc")
	}
}

func TestFromBytes(t *testing.T) {
	blob := []byte("content under test")
	a := FromBytes("helios", "25.11", "noble-amd64", BlobName("helios", "25.11"), MediaTypePackage, blob)

	if a.Descriptor.Size != int64(len(blob)) {
		t.Fatalf("size = %d, want %d", a.Descriptor.Size, len(blob))
	}
	if a.Descriptor.Digest == "" {
		t.Fatal("descriptor has no digest")
	}
	if a.Name != "helios-25.11.tar.gz" {
		t.Fatalf("name = %q, want helios-25.11.tar.gz", a.Name)
	}
}

func TestFromFileMatchesFromBytes(t *testing.T) {
	blob := []byte("identical content")
	path := filepath.Join(t.TempDir(), "blob.tar.gz")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fromFile, err := FromFile("zlib", "1.3.1", "noble-amd64", MediaTypeComponent, path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	fromBytes := FromBytes("zlib", "1.3.1", "noble-amd64", "blob.tar.gz", MediaTypeComponent, blob)

	if fromFile.Descriptor.Digest != fromBytes.Descriptor.Digest {
		t.Fatalf("digests differ: file %s, bytes %s", fromFile.Descriptor.Digest, fromBytes.Descriptor.Digest)
	}
	if fromFile.Name != "blob.tar.gz" {
		t.Fatalf("name = %q, want blob.tar.gz", fromFile.Name)
	}
}

func TestVerify(t *testing.T) {
	blob := []byte("verified content")
	a := FromBytes("zlib", "1.3.1", "noble-amd64", "z.tar.gz", MediaTypeComponent, blob)

	if err := a.Verify(bytes.NewReader(blob)); err != nil {
		t.Fatalf("Verify of matching content: %v", err)
	}

	err := a.Verify(bytes.NewReader([]byte("tampered content")))
	if !errors.Is(err, ErrDigest) {
		t.Fatalf("err = %v, want ErrDigest", err)
	}
}
