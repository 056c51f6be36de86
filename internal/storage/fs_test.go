package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFSStore_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	s, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if s.Root() != root {
		t.Fatalf("Root() = %q, want %q", s.Root(), root)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestNewFSStore_EmptyRoot(t *testing.T) {
	if _, err := NewFSStore("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestSaveReadDelete_RoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	data := []byte{0xFF, 0xD8, 0xFF, 0x01, 0x02}
	path, err := s.Save(data, "photo.JPG")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(path, PublicPrefix+"/") {
		t.Fatalf("path %q missing public prefix", path)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Fatalf("path %q should keep lowercase extension", path)
	}

	got, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read mismatch: %v != %v", got, data)
	}

	if err := s.Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(path); err == nil {
		t.Fatal("expected read error after delete")
	}
	// Idempotent delete.
	if err := s.Delete(path); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSave_UniqueNames(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	a, err := s.Save([]byte("x"), "a.png")
	if err != nil {
		t.Fatalf("Save a: %v", err)
	}
	b, err := s.Save([]byte("x"), "a.png")
	if err != nil {
		t.Fatalf("Save b: %v", err)
	}
	if a == b {
		t.Fatalf("expected unique names, got %q twice", a)
	}
}

func TestLocalName_RejectsTraversal(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	if err := s.Delete("uploads/.."); err == nil {
		t.Fatal("expected error for traversal path")
	}
	// Base-name normalization keeps deletes inside the root.
	if err := s.Delete("../../etc/passwd"); err != nil {
		t.Fatalf("normalized delete should be a no-op, got %v", err)
	}
}
