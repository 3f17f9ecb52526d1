package runtime

import (
	"strings"
	"testing"
)

func TestImageTag(t *testing.T) {
	tag := ImageTag("/some/archive.tar")

	if !strings.HasPrefix(tag, "import/") {
		t.Fatalf("tag %q missing import/ prefix", tag)
	}
	if !strings.HasSuffix(tag, ":latest") {
		t.Fatalf("tag %q missing :latest suffix", tag)
	}

	if ImageTag("/some/archive.tar") != tag {
		t.Fatal("ImageTag is not deterministic")
	}

	if ImageTag("/other/archive.tar") == tag {
		t.Fatal("different paths produced the same tag")
	}
}

func TestOCIMounts(t *testing.T) {
	mounts := ociMounts([]Mount{
		{Source: "/host/cache", Target: "/kiln/cache"},
		{Source: "/host/keys", Target: "/kiln/keys", ReadOnly: true},
	})

	if len(mounts) != 2 {
		t.Fatalf("len = %d, want 2", len(mounts))
	}

	rw := mounts[0]
	if rw.Type != "bind" || rw.Source != "/host/cache" || rw.Destination != "/kiln/cache" {
		t.Fatalf("mount = %+v, want bind /host/cache -> /kiln/cache", rw)
	}
	if !hasOption(rw.Options, "rw") {
		t.Fatalf("options = %v, want rw", rw.Options)
	}

	ro := mounts[1]
	if !hasOption(ro.Options, "ro") {
		t.Fatalf("options = %v, want ro", ro.Options)
	}
}

func hasOption(options []string, want string) bool {
	for _, o := range options {
		if o == want {
			return true
		}
	}
	return false
}
