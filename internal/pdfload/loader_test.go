package pdfload

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.pdf"))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Load(missing) = %v, want ErrInvalidDocument", err)
	}
}

func TestLoad_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(path, []byte("this is plain text, not a PDF"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Load(non-PDF) = %v, want ErrInvalidDocument", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pdf")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Load(empty) = %v, want ErrInvalidDocument", err)
	}
}
