package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aigent/aigent/internal/logger"
)

// EventLog is the crash-safe append-only JSONL store of memory entries (C1).
// It is the single source of truth: every other component either reads from
// it directly or rebuilds a derived view from it.
type EventLog struct {
	mu   sync.Mutex
	path string
}

// NewEventLog opens (without yet touching) the event log at path, creating
// its parent directory if necessary.
func NewEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &EventLog{path: path}, nil
}

func (l *EventLog) Path() string { return l.path }

// Append serializes one entry as a single newline-delimited JSON record,
// flushes the user-space buffer, and forces an OS-level data sync before
// returning success. A crash immediately after Append returns leaves the
// entry readable from disk (spec §8 quantified invariant).
func (l *EventLog) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync event log: %w", err)
	}
	return nil
}

// Backup copies the current canonical file to a ".bak" sibling, ahead of a
// compacting Overwrite. It is a no-op if the canonical file does not exist
// yet (supplemented from original_source/event_log.rs::backup).
func (l *EventLog) Backup() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backupLocked()
}

func (l *EventLog) backupLocked() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read for backup: %w", err)
	}
	bak := l.path + ".bak"
	if err := os.WriteFile(bak, data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// Overwrite replaces the entire canonical log with entries, used for
// compaction (sleep promoting/retiring many entries at once) and for `aigent
// reset`/`memory wipe`. It writes a sibling temp file in the same directory,
// fsyncs it, then atomically renames it over the canonical path — a crash at
// any point leaves either the old or the new file fully intact.
func (l *EventLog) Overwrite(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backupLocked(); err != nil {
		logger.Warn("event log backup before overwrite failed", "err", err)
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp log: %w", err)
	}

	w := bufio.NewWriter(f)
	writeErr := func() error {
		for _, e := range entries {
			line, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entry %s: %w", e.ID, err)
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write tmp log: %w", writeErr)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync tmp log: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close tmp log: %w", err)
	}

	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename tmp log: %w", err)
	}
	return nil
}

// LoadResult is the outcome of a Load call: the successfully parsed entries
// plus the count of quarantined lines.
type LoadResult struct {
	Entries     []Entry
	CorruptN    int
}

// Load streams the canonical log line by line. A parse error does not abort
// the load: the offending line is appended verbatim to a ".corrupt" sidecar,
// a warning is logged with the line number and parse error, and iteration
// continues. Returns the successfully parsed entries.
func (l *EventLog) Load() (LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadResult{}, nil
		}
		return LoadResult{}, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var result LoadResult
	var corruptFile *os.File
	lineNo := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			result.CorruptN++
			logger.Warn("corrupt event log line quarantined", "line", lineNo, "err", err)
			if corruptFile == nil {
				corruptFile, _ = os.OpenFile(l.path+".corrupt", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			}
			if corruptFile != nil {
				corruptFile.Write(line)
				corruptFile.Write([]byte("\n"))
			}
			continue
		}
		result.Entries = append(result.Entries, e)
	}
	if corruptFile != nil {
		corruptFile.Close()
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan event log: %w", err)
	}
	if result.CorruptN > 0 {
		logger.Warn("event log load finished with corrupt lines", "corrupt_count", result.CorruptN)
	}
	return result, nil
}
