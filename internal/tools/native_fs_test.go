package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestReadWriteFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry()
	registerFSTools(r, root, 0)

	writeEntry, _ := r.lookup("write_file")
	out, err := writeEntry.handler(context.Background(), map[string]any{"path": "note.txt", "content": "hello"})
	if err != nil {
		t.Fatalf("write_file: %v", err)
	}
	if out == "" {
		t.Error("expected non-empty write_file result")
	}

	readEntry, _ := r.lookup("read_file")
	content, err := readEntry.handler(context.Background(), map[string]any{"path": "note.txt"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if content != "hello" {
		t.Errorf("expected hello, got %q", content)
	}
}

func TestWriteFileRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry()
	registerFSTools(r, root, 0)

	entry, _ := r.lookup("write_file")
	_, err := entry.handler(context.Background(), map[string]any{"path": "../escape.txt", "content": "x"})
	if err != ErrPathEscape {
		t.Errorf("expected ErrPathEscape, got %v", err)
	}
}

func TestReadFileRejectsOversizedFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	r := NewRegistry()
	registerFSTools(r, root, 4)

	entry, _ := r.lookup("read_file")
	_, err := entry.handler(context.Background(), map[string]any{"path": "big.txt"})
	if err != ErrFileTooLarge {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}
