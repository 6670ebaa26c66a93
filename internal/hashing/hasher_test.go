package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pagepress/pagepress/internal/domain"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHashFileIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", []byte("some document content"))

	h := New()
	first, err := h.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	second, err := h.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed on second call: %v", err)
	}

	if first != second {
		t.Errorf("same file hashed to %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestHashFileDistinguishesContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("content A"))
	b := writeFile(t, dir, "b", []byte("content B"))

	h := New()
	hashA, err := h.HashFile(a)
	if err != nil {
		t.Fatal(err)
	}
	hashB, err := h.HashFile(b)
	if err != nil {
		t.Fatal(err)
	}

	if hashA == hashB {
		t.Error("different content produced identical hashes")
	}
}

func TestImageDigestIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "img.png", []byte{0x89, 0x50, 0x4e, 0x47, 1, 2, 3})

	h := New()
	first, err := h.ImageDigest(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.ImageDigest(path)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("same image digested to %s and %s", first, second)
	}
}

func TestUnreadablePathIsIOError(t *testing.T) {
	h := New()

	_, err := h.HashFile("/nonexistent/file")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !domain.IsType(err, domain.ErrorTypeIO) {
		t.Errorf("expected IO error, got %v", err)
	}

	_, err = h.ImageDigest("/nonexistent/file")
	if !domain.IsType(err, domain.ErrorTypeIO) {
		t.Errorf("expected IO error, got %v", err)
	}
}
