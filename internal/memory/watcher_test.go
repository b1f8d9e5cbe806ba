package memory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWatcherRecordsHumanEdit(t *testing.T) {
	root := t.TempDir()
	var recorded []Entry
	w := NewWatcher(root, func(e Entry) error {
		recorded = append(recorded, e)
		return nil
	})

	path := filepath.Join(root, "core_summary.yaml")
	body := "entries:\n  - content: I prefer short replies\n"
	content := "last_updated: 2024-01-01T00:00:00Z\nchecksum: sha256:deadbeef\n" + body
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artefact: %v", err)
	}

	w.handleEvent(path)

	if len(recorded) != 1 {
		t.Fatalf("expected 1 recorded human edit, got %d", len(recorded))
	}
	if recorded[0].Tier != TierCore || recorded[0].Source != "human-edit" {
		t.Errorf("unexpected recorded entry: %+v", recorded[0])
	}
	if recorded[0].Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %v", recorded[0].Confidence)
	}
}

func TestWatcherSuppressesSelfTrigger(t *testing.T) {
	root := t.TempDir()
	var recorded []Entry
	w := NewWatcher(root, func(e Entry) error {
		recorded = append(recorded, e)
		return nil
	})

	path := filepath.Join(root, "user_profile.yaml")
	body := "entries:\n  - content: goal: ship\n"
	checksum := checksumOf(body)
	content := "last_updated: 2024-01-01T00:00:00Z\nchecksum: " + checksum + "\n" + body
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artefact: %v", err)
	}

	w.NoteOwnWrite("user_profile.yaml", checksum)
	w.handleEvent(path)

	if len(recorded) != 0 {
		t.Errorf("expected self-trigger suppressed, got %d recorded entries", len(recorded))
	}
}

func TestWatcherIgnoresMemoryMD(t *testing.T) {
	root := t.TempDir()
	var recorded []Entry
	w := NewWatcher(root, func(e Entry) error {
		recorded = append(recorded, e)
		return nil
	})

	path := filepath.Join(root, "MEMORY.md")
	if err := os.WriteFile(path, []byte("# notes\n"), 0o644); err != nil {
		t.Fatalf("write MEMORY.md: %v", err)
	}
	w.handleEvent(path)
	if len(recorded) != 0 {
		t.Errorf("expected MEMORY.md edits to be ignored, got %d", len(recorded))
	}
}
