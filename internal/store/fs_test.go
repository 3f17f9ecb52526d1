package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*fsStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := newFSStore(dir)
	if err != nil {
		t.Fatalf("newFSStore: %v", err)
	}
	return s, dir
}

func TestFSRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	blob := []byte("cached artifact bytes")
	key := "noble-amd64/zlib/1.3.1/zlib-1.3.1.tar.gz"

	if err := s.Put(ctx, key, bytes.NewReader(blob), int64(len(blob))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	info, err := s.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(blob)) {
		t.Fatalf("size = %d, want %d", info.Size, len(blob))
	}

	r, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("got %q, want %q", got, blob)
	}
}

func TestFSNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Stat(ctx, "missing/key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "missing/key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
}

func TestFSPutAtomic(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	key := "a/b/blob"

	// A size mismatch must abort the publish and leave no object behind.
	err := s.Put(ctx, key, strings.NewReader("short"), 100)
	if err == nil {
		t.Fatal("Put with wrong size succeeded")
	}
	if _, err := s.Stat(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("partial object visible after failed put: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFSPutOverwrite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	key := "k"

	if err := s.Put(ctx, key, strings.NewReader("one"), 3); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, key, strings.NewReader("two"), 3); err != nil {
		t.Fatalf("overwrite Put: %v", err)
	}

	r, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "two" {
		t.Fatalf("got %q, want two", got)
	}
}

func TestFSList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{
		"noble-amd64/zlib/1.3.1/zlib-1.3.1.tar.gz",
		"noble-amd64/zlib/1.3.1/zlib-1.3.1.tar.gz.asc",
		"noble-amd64/hdf5/1.14.5/hdf5-1.14.5.tar.gz",
	} {
		if err := s.Put(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	keys, err := s.List(ctx, "noble-amd64/zlib")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2: %v", len(keys), keys)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "noble-amd64/zlib/") {
			t.Fatalf("key %q outside the listed prefix", k)
		}
	}

	keys, err = s.List(ctx, "absent")
	if err != nil {
		t.Fatalf("List absent prefix: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("keys under absent prefix: %v", keys)
	}
}

func TestOpenSchemes(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file://"+dir, Config{})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := s.(*fsStore); !ok {
		t.Fatalf("Open file returned %T, want *fsStore", s)
	}

	if _, err := Open("ftp://host/x", Config{}); !errors.Is(err, ErrScheme) {
		t.Fatalf("err = %v, want ErrScheme", err)
	}

	cfg := Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}
	s, err = Open("s3://bucket/prefix", cfg)
	if err != nil {
		t.Fatalf("Open s3: %v", err)
	}
	s3, ok := s.(*s3Store)
	if !ok {
		t.Fatalf("Open s3 returned %T, want *s3Store", s)
	}
	if s3.bucket != "bucket" || s3.prefix != "prefix" {
		t.Fatalf("bucket/prefix = %s/%s, want bucket/prefix", s3.bucket, s3.prefix)
	}

	if _, err := Open("s3://bucket", Config{}); err == nil {
		t.Fatal("Open s3 without credentials succeeded")
	}
}
