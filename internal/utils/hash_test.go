package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashBytes(t *testing.T) {
	// sha256 of the empty input is a well-known constant
	if got := HashBytes(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected empty hash: %s", got)
	}
	if HashBytes([]byte("a")) == HashBytes([]byte("b")) {
		t.Error("different inputs must not collide")
	}
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	content := []byte("not really a jpeg")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if want := HashBytes(content); got != want {
		t.Errorf("HashFile = %s, want %s", got, want)
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}
