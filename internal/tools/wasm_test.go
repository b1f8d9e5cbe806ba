package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindGuestFilesEmptyDirReturnsNone(t *testing.T) {
	found, err := findGuestFiles(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected no guests in an empty extensions dir, got %v", found)
	}
}

func TestFindGuestFilesMissingDirReturnsNone(t *testing.T) {
	found, err := findGuestFiles("/path/does/not/exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected no guests for a missing extensions dir, got %v", found)
	}
}

func TestFindGuestFilesFlatLayout(t *testing.T) {
	dir := t.TempDir()
	writeEmptyWasm(t, filepath.Join(dir, "greet.wasm"))

	found, err := findGuestFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found["greet"] == "" {
		t.Errorf("expected flat-layout greet.wasm to be discovered, got %v", found)
	}
}

func TestFindGuestFilesNestedLayout(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "tools-src", "mycrate", "target", "wasm32-wasip1", "release")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeEmptyWasm(t, filepath.Join(nested, "greet.wasm"))

	found, err := findGuestFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found["greet"] == "" {
		t.Errorf("expected nested-layout greet.wasm to be discovered, got %v", found)
	}
}

func writeEmptyWasm(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte{0x00, 0x61, 0x73, 0x6d}, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
