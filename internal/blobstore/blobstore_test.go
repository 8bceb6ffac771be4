package blobstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestPutOpen(t *testing.T) {
	s := newStore(t)

	ref, size, err := s.Put(strings.NewReader("hello, world!"), 0)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	want := Ref("sha256:D3J5DCIHSPV86M5UV143LC6L3HJ1JSV7K6KV1PQO73A1VSR8USK0-13")
	if ref != want {
		t.Errorf("Put() ref = %q, want %q", ref, want)
	}
	if size != 13 {
		t.Errorf("Put() size = %d, want 13", size)
	}

	r, err := s.Open(ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello, world!" {
		t.Errorf("Open() content = %q", got)
	}
}

func TestPut_Deduplicates(t *testing.T) {
	s := newStore(t)
	a, _, err := s.Put(strings.NewReader("same"), 0)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := s.Put(strings.NewReader("same"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected identical refs, got %q and %q", a, b)
	}
	tmp, err := os.ReadDir(filepath.Join(s.dir, tmpDirName))
	if err != nil {
		t.Fatal(err)
	}
	if len(tmp) != 0 {
		t.Errorf("expected empty tmp dir, got %d entries", len(tmp))
	}
}

func TestPut_Limit(t *testing.T) {
	s := newStore(t)
	if _, _, err := s.Put(strings.NewReader("12345"), 5); err != nil {
		t.Fatalf("expected data at the limit to fit, got %v", err)
	}
	if _, _, err := s.Put(strings.NewReader("123456"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := newStore(t)
	ref, _, err := s.Put(strings.NewReader("bye"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ref); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Open(ref); err == nil {
		t.Error("expected Open() to fail after Remove()")
	}
	if err := s.Remove(ref); err != nil {
		t.Errorf("second Remove() should be a no-op, got %v", err)
	}
	if err := s.Remove("bogus"); err == nil {
		t.Error("expected invalid ref error")
	}
}

func TestGC(t *testing.T) {
	s := newStore(t)
	keep, _, err := s.Put(strings.NewReader("keep"), 0)
	if err != nil {
		t.Fatal(err)
	}
	drop, _, err := s.Put(strings.NewReader("drop"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, tmpDirName, "stale.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "junk"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	removed, err := s.GC(map[Ref]bool{keep: true})
	if err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("GC() removed = %d, want 1", removed)
	}
	if _, err := s.Open(keep); err != nil {
		t.Errorf("kept blob missing: %v", err)
	}
	if _, err := s.Open(drop); err == nil {
		t.Error("expected orphan blob to be collected")
	}
	if _, err := os.Stat(filepath.Join(s.dir, "junk")); !os.IsNotExist(err) {
		t.Error("expected unknown root entry to be removed")
	}
	if _, err := os.Stat(filepath.Join(s.dir, tmpDirName, "stale.tmp")); !os.IsNotExist(err) {
		t.Error("expected stale temp file to be removed")
	}
}

func TestRefValidate(t *testing.T) {
	tests := []struct {
		ref     Ref
		wantErr bool
	}{
		{"sha256:D3J5DCIHSPV86M5UV143LC6L3HJ1JSV7K6KV1PQO73A1VSR8USK0-13", false},
		{"D3J5DCIHSPV86M5UV143LC6L3HJ1JSV7K6KV1PQO73A1VSR8USK0-13", true},
		{"sha256:short-13", true},
		{"sha256:D3J5DCIHSPV86M5UV143LC6L3HJ1JSV7K6KV1PQO73A1VSR8USK0", true},
		{"sha256:d3j5dcihspv86m5uv143lc6l3hj1jsv7k6kv1pqo73a1vsr8usk0-13", true},
		{"sha256:D3J5DCIHSPV86M5UV143LC6L3HJ1JSV7K6KV1PQO73A1VSR8USK0-x", true},
	}
	for _, tt := range tests {
		if err := tt.ref.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) = %v, wantErr %v", tt.ref, err, tt.wantErr)
		}
	}
}
