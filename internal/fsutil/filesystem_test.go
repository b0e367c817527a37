package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	osfs := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "a", "b")

	if err := osfs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if !osfs.Exists(dir) {
		t.Fatalf("expected %s to exist", dir)
	}

	name := filepath.Join(dir, "out.txt")
	w, err := osfs.Create(name)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("ping")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := osfs.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "ping" {
		t.Errorf("expected %q, got %q", "ping", data)
	}
	if osfs.Exists(filepath.Join(dir, "missing.txt")) {
		t.Error("expected missing file to not exist")
	}
}

func TestMemoryFileSystem_VisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/cloud.asc")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("1 2 3\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if mfs.Exists("/out/cloud.asc") {
		t.Error("file should not be visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := mfs.ReadFile("/out//cloud.asc")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "1 2 3\n" {
		t.Errorf("unexpected content %q", data)
	}

	// Returned data is a copy.
	data[0] = 'x'
	again, _ := mfs.ReadFile("/out/cloud.asc")
	if again[0] != '1' {
		t.Error("ReadFile must return a copy")
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_, err := mfs.ReadFile("/nope")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/a/b/c", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
}

func TestMemoryFileSystem_FilesAndGlob(t *testing.T) {
	mfs := NewMemoryFileSystem()
	for _, name := range []string{"/p/top.png", "/p/side.png", "/p/readme.txt", "/q/other.png"} {
		w, _ := mfs.Create(name)
		_ = w.Close()
	}

	want := []string{"/p/readme.txt", "/p/side.png", "/p/top.png", "/q/other.png"}
	if diff := cmp.Diff(want, mfs.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/p/side.png", "/p/top.png"}, mfs.Glob("/p", ".png")); diff != "" {
		t.Errorf("Glob() mismatch (-want +got):\n%s", diff)
	}
}
