package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aigent/aigent/internal/logger"
)

const watcherPreviewCap = 800

// watchedArtefacts maps the three human-editable root YAML files to the tier
// a human edit should be recorded under. MEMORY.md is prose-only and is
// deliberately excluded (spec §4.4).
var watchedArtefacts = map[string]Tier{
	"core_summary.yaml":        TierCore,
	"user_profile.yaml":        TierUserProfile,
	"reflective_opinions.yaml": TierReflective,
}

// Watcher observes the vault's root YAML files for human edits and injects
// them as high-confidence memory entries, suppressing its own writes via
// checksum comparison (C4).
type Watcher struct {
	root   string
	record func(Entry) error

	mu            sync.Mutex
	lastOwnWrite  map[string]string // filename -> checksum of the daemon's own last write
	selfTriggerWindow time.Duration
}

// NewWatcher constructs a Watcher over root, calling record for every
// qualifying human edit.
func NewWatcher(root string, record func(Entry) error) *Watcher {
	return &Watcher{
		root:              root,
		record:            record,
		lastOwnWrite:      map[string]string{},
		selfTriggerWindow: 5 * time.Second,
	}
}

// NoteOwnWrite must be called by the vault projector immediately after it
// writes filename, so the watcher can suppress the resulting fsnotify event
// via checksum match (spec §4.4, §7 "vault watcher event on daemon's own
// write: suppressed by checksum match").
func (w *Watcher) NoteOwnWrite(filename, checksum string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastOwnWrite[filename] = checksum
}

// Run watches the three root YAML artefacts until ctx is canceled. It is a
// suspension point per spec §5: all filesystem watcher events are awaited
// cooperatively, never polled in a busy loop.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleEvent(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("vault watcher error", "err", err)
		}
	}
}

func (w *Watcher) handleEvent(path string) {
	filename := filepath.Base(path)
	tier, watched := watchedArtefacts[filename]
	if !watched {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("vault watcher read failed", "path", path, "err", err)
		return
	}
	body, bodyOK := extractArtefactBody(data)
	if !bodyOK {
		return
	}
	checksum := checksumOf(body)

	w.mu.Lock()
	ownChecksum, hadOwnWrite := w.lastOwnWrite[filename]
	w.mu.Unlock()
	if hadOwnWrite && ownChecksum == checksum {
		logger.Debug("vault watcher suppressed self-trigger", "file", filename)
		return
	}

	preview := string(data)
	if len(preview) > watcherPreviewCap {
		preview = preview[:watcherPreviewCap]
	}

	entry := NewEntry(tier, preview, "human-edit")
	entry.Confidence = 0.9
	if err := w.record(entry); err != nil {
		logger.Warn("vault watcher record failed", "file", filename, "err", err)
	}
}

// extractArtefactBody strips the last_updated/checksum header lines from a
// written artefact, mirroring the logic writeArtefact uses to compute the
// checksum in the first place, so checksums can be compared apples-to-apples.
func extractArtefactBody(data []byte) (string, bool) {
	lines := splitLinesKeepEnding(string(data))
	var bodyLines []string
	for _, l := range lines {
		trimmed := trimSpaceLine(l)
		if hasLinePrefix(trimmed, "last_updated:") || hasLinePrefix(trimmed, "checksum:") {
			continue
		}
		bodyLines = append(bodyLines, l)
	}
	if len(bodyLines) == 0 {
		return "", false
	}
	out := ""
	for _, l := range bodyLines {
		out += l
	}
	return out, true
}

func splitLinesKeepEnding(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func trimSpaceLine(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

func hasLinePrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
