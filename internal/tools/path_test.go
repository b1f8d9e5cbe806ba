package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfineRejectsEscape(t *testing.T) {
	root := t.TempDir()
	if _, err := confine(root, "../../etc/passwd"); err != ErrPathEscape {
		t.Errorf("expected ErrPathEscape, got %v", err)
	}
}

func TestConfineAllowsNestedRelativePath(t *testing.T) {
	root := t.TempDir()
	clean, err := confine(root, "notes/todo.txt")
	if err != nil {
		t.Fatalf("confine: %v", err)
	}
	want := filepath.Join(root, "notes", "todo.txt")
	if clean != want {
		t.Errorf("expected %s, got %s", want, clean)
	}
}

func TestConfineAllowsAbsolutePathInsideRoot(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "x.txt")
	clean, err := confine(root, abs)
	if err != nil {
		t.Fatalf("confine: %v", err)
	}
	if clean != abs {
		t.Errorf("expected %s, got %s", abs, clean)
	}
}

func TestCheckSizeRejectsOversizedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "big.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := checkSize(path, 5); err != ErrFileTooLarge {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if err := checkSize(path, 100); err != nil {
		t.Errorf("expected file within limit to pass, got %v", err)
	}
}

func TestCheckSizeAllowsMissingFile(t *testing.T) {
	root := t.TempDir()
	if err := checkSize(filepath.Join(root, "missing.txt"), 5); err != nil {
		t.Errorf("expected missing write_file target to pass size check, got %v", err)
	}
}
