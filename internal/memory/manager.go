package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/logger"
)

// ManagerConfig bundles the on-disk layout and runtime knobs MemoryManager
// needs (spec §6 file layout, §4.1-4.7/4.12 component config).
type ManagerConfig struct {
	DataRoot       string // contains memory/events.jsonl, memory/index.sqlite, .identity.json, vault/
	VaultPath      string // defaults to DeriveDefaultVaultPath(events.jsonl) if empty
	KVTierLimit    int
	IndexCapacity  int
	Passive        PassiveSleepConfig
	MultiAgent     MultiAgentSleepConfig
	MaxBeliefsInPrompt int
}

// MemoryManager orchestrates C1 (EventLog), C2 (Index), C3 (Vault), C4
// (Watcher), C5 (retrieval + prompt composition), C6 (Reflection), C7
// (Sleep), and C12 (Identity Kernel) behind one cohesive surface the daemon
// layer (C10) can take-out/operate-lock-free/put-back per spec §4.10's
// concurrency discipline. MemoryManager itself is not safe for concurrent
// mutation from multiple goroutines without that discipline; its own
// mutex only protects the in-memory entry cache against watcher-driven
// background writes.
type MemoryManager struct {
	mu       sync.RWMutex
	log      *EventLog
	index    *Index
	vault    *Vault
	watcher  *Watcher
	identity *IdentityKernel
	entries  []Entry
	cfg      ManagerConfig
}

// OpenMemoryManager loads the event log into memory, opens (or rebuilds)
// the secondary index, and rebuilds the identity kernel, returning a ready
// MemoryManager.
func OpenMemoryManager(cfg ManagerConfig) (*MemoryManager, error) {
	logPath := filepath.Join(cfg.DataRoot, "memory", "events.jsonl")
	log, err := NewEventLog(logPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	loaded, err := log.Load()
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	if loaded.CorruptN > 0 {
		logger.Warn("memory manager loaded log with corrupt lines quarantined", "count", loaded.CorruptN)
	}

	indexPath := filepath.Join(cfg.DataRoot, "memory", "index.sqlite")
	index, err := OpenIndex(indexPath, cfg.IndexCapacity)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if empty, err := index.IsEmpty(); err == nil && empty && len(loaded.Entries) > 0 {
		if err := index.RebuildFromLog(log); err != nil {
			logger.Warn("index rebuild on open failed", "err", err)
		}
	}

	vaultPath := cfg.VaultPath
	if vaultPath == "" {
		if derived, ok := DeriveDefaultVaultPath(logPath); ok {
			vaultPath = derived
		} else {
			vaultPath = filepath.Join(cfg.DataRoot, "vault")
		}
	}
	vault := NewVault(vaultPath, cfg.KVTierLimit)
	if err := vault.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("ensure vault root: %w", err)
	}

	identity := NewIdentityKernel(filepath.Join(cfg.DataRoot, ".identity.json"))
	identity.Rebuild(loaded.Entries)

	return &MemoryManager{
		log:      log,
		index:    index,
		vault:    vault,
		identity: identity,
		entries:  loaded.Entries,
		cfg:      cfg,
	}, nil
}

func (m *MemoryManager) Close() error {
	return m.index.Close()
}

// Append persists a new entry to the log, updates the in-memory cache, and
// upserts its metadata into the secondary index.
func (m *MemoryManager) Append(e Entry) error {
	if err := m.log.Append(e); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()

	if err := m.index.Insert(IndexedMeta{ID: e.ID, Tier: e.Tier, ContentHash: e.ContentHash, Confidence: e.Confidence}); err != nil {
		logger.Warn("index insert failed after append", "id", e.ID, "err", err)
	}
	return nil
}

// AppendAll appends a batch of entries in order, stopping at the first
// failure (the event log's per-record fsync means partial progress is
// still durable, per spec §5's ordering guarantees).
func (m *MemoryManager) AppendAll(entries []Entry) error {
	for _, e := range entries {
		if err := m.Append(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a snapshot of all loaded entries (tombstones included;
// callers that need "live" entries should filter with IsTombstone).
func (m *MemoryManager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// CoreEntries returns the live (non-tombstoned) Core tier entries — the
// durable beliefs C12's identity kernel is built from — for `aigent memory
// inspect-core` (spec §6).
func (m *MemoryManager) CoreEntries() []Entry {
	entries := m.Entries()
	dead := map[string]bool{}
	for _, e := range entries {
		for _, prefix := range []string{"tombstone:", "belief:retracted:"} {
			if strings.HasPrefix(e.Source, prefix) {
				dead[strings.TrimPrefix(e.Source, prefix)] = true
			}
		}
	}
	var out []Entry
	for _, e := range entries {
		if e.Tier == TierCore && !e.IsTombstone() && !dead[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// PromotionHistory returns every entry C7's sleep passes produced by
// promoting, merging, or otherwise rewriting another entry — identified by
// the "sleep:" source provenance prefix (spec §4.7) — newest first, for
// `aigent memory promotions`.
func (m *MemoryManager) PromotionHistory() []Entry {
	var out []Entry
	for _, e := range m.Entries() {
		if strings.HasPrefix(e.Source, "sleep:") {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// WipeTier deletes every entry of the given tier from the canonical log via
// EventLog.Overwrite, rebuilds the secondary index from the surviving
// entries, and refreshes the identity kernel if Core was wiped. Backs
// `aigent memory wipe --layer L --yes` (spec §6); the CLI is responsible for
// requiring --yes before issuing this.
func (m *MemoryManager) WipeTier(tier Tier) (int, error) {
	m.mu.Lock()
	var kept []Entry
	removed := 0
	for _, e := range m.entries {
		if e.Tier == tier {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.mu.Unlock()

	if err := m.log.Overwrite(kept); err != nil {
		return 0, fmt.Errorf("overwrite event log: %w", err)
	}

	m.mu.Lock()
	m.entries = kept
	m.mu.Unlock()

	if err := m.index.Reset(); err != nil {
		logger.Warn("index reset after wipe failed", "err", err)
	} else if err := m.index.RebuildFromLog(m.log); err != nil {
		logger.Warn("index rebuild after wipe failed", "err", err)
	}

	if tier == TierCore {
		m.RefreshIdentity()
	}
	return removed, nil
}

// VaultRoot returns the filesystem root C3's projected vault is written
// under, for callers (e.g. a remote export) that need to mirror it
// elsewhere without reaching into the Vault type directly.
func (m *MemoryManager) VaultRoot() string {
	return m.vault.Root
}

// Retrieve runs C5's hybrid scoring over the current entry set.
func (m *MemoryManager) Retrieve(query string, queryEmbedding []float32, limit int) []ScoredEntry {
	return Retrieve(m.Entries(), RetrieveOptions{Query: query, QueryEmbedding: queryEmbedding, Limit: limit, Now: time.Now().UTC()})
}

// Identity returns the current cached Identity view.
func (m *MemoryManager) Identity() Identity {
	return m.identity.Current()
}

// RefreshIdentity rebuilds the identity kernel from current entries and
// persists the snapshot (spec §4.12: "refreshed lazily when
// Core changes").
func (m *MemoryManager) RefreshIdentity() Identity {
	id := m.identity.Rebuild(m.Entries())
	if err := m.identity.Persist(); err != nil {
		logger.Warn("identity snapshot persist failed", "err", err)
	}
	return id
}

// ComposeTurnPrompt builds the full pinned-order prompt for one turn (spec
// §4.5), combining KV artefact contents, identity, beliefs, relational
// matrix, ranked retrieval context, recent turns, and the user message.
func (m *MemoryManager) ComposeTurnPrompt(userMessage string, queryEmbedding []float32, recent []ConversationTurn, contextLimit int) string {
	entries := m.Entries()
	ranked := Retrieve(entries, RetrieveOptions{Query: userMessage, QueryEmbedding: queryEmbedding, Limit: contextLimit, Now: time.Now().UTC()})

	return ComposePrompt(PromptComponents{
		KVBlock:            m.kvBlock(),
		Identity:           m.Identity(),
		AllEntries:         entries,
		RankedContext:      ranked,
		RecentTurns:        recent,
		UserMessage:        userMessage,
		MaxBeliefsInPrompt: m.cfg.MaxBeliefsInPrompt,
		Now:                time.Now().UTC(),
	})
}

// ReflectTurn runs C6's inline reflection over one original user/assistant
// exchange and persists whatever it extracts, returning the broadcast
// events the daemon layer should fan out. Intended to be invoked as a
// fire-and-forget background task per spec §4.10.
func (m *MemoryManager) ReflectTurn(ctx context.Context, model llm.LLM, userMessage, assistantMessage string) ([]BroadcastEvent, error) {
	result, err := Reflect(ctx, model, userMessage, assistantMessage)
	if err != nil {
		return nil, err
	}
	entries, events := ApplyReflection(result, "reflection")
	if err := m.AppendAll(entries); err != nil {
		return nil, fmt.Errorf("persist reflection entries: %w", err)
	}
	return events, nil
}

// RunPassiveSleep executes C7's heuristic-only pass and persists its
// output (no LLM call).
func (m *MemoryManager) RunPassiveSleep() (PassiveSleepResult, error) {
	result := RunPassiveSleep(m.Entries(), m.cfg.Passive, time.Now().UTC())
	if err := m.AppendAll(result.Promoted); err != nil {
		return result, err
	}
	if err := m.AppendAll(result.Pruned); err != nil {
		return result, err
	}
	if err := m.AppendAll(result.Forgotten); err != nil {
		return result, err
	}
	return result, nil
}

// RunAgenticSleep executes C7's single-agent mode: build the
// identity-grounded prompt, call the model, parse instructions, apply and
// persist them.
func (m *MemoryManager) RunAgenticSleep(ctx context.Context, model llm.LLM) (AgenticInsights, error) {
	entries := m.Entries()
	sample := SampleForAgenticSleep(entries, 60)
	prompt := BuildAgenticSleepPrompt(m.Identity().IdentityContext(), sample)

	insights, err := RunAgenticSleep(ctx, model, prompt)
	if err != nil {
		return AgenticInsights{}, err
	}
	newEntries := ApplyAgenticInsights(entries, insights)
	if err := m.AppendAll(newEntries); err != nil {
		return insights, fmt.Errorf("persist agentic sleep entries: %w", err)
	}
	return insights, nil
}

// RunMultiAgentSleep executes C7's nightly multi-agent pipeline and
// persists the merged result (with single-agent fallback on specialist or
// total failure, per spec §4.7's Fallback clause).
func (m *MemoryManager) RunMultiAgentSleep(ctx context.Context, model llm.LLM) (AgenticInsights, error) {
	entries := m.Entries()
	identityCtx := m.Identity().IdentityContext()
	runSpecialist := NewLLMSpecialistRunner(model, identityCtx)
	deliberate := NewLLMDeliberationRunner(model, identityCtx)
	runSingleAgent := func(ctx context.Context, batch []Entry) (AgenticInsights, error) {
		prompt := BuildAgenticSleepPrompt(identityCtx, SampleForAgenticSleep(batch, 60))
		return RunAgenticSleep(ctx, model, prompt)
	}

	insights, err := RunMultiAgentSleep(ctx, entries, m.cfg.MultiAgent, runSpecialist, deliberate, runSingleAgent)
	if err != nil {
		return AgenticInsights{}, err
	}
	newEntries := ApplyAgenticInsights(entries, insights)
	if err := m.AppendAll(newEntries); err != nil {
		return insights, fmt.Errorf("persist multi-agent sleep entries: %w", err)
	}
	return insights, nil
}

// kvBlock reads the root core_summary.yaml and user_profile.yaml artefacts
// verbatim for KV auto-injection into the prompt (spec §4.5 step 1). A
// missing file (vault not yet exported) is silently treated as empty.
func (m *MemoryManager) kvBlock() string {
	var b strings.Builder
	for _, filename := range []string{"core_summary.yaml", "user_profile.yaml"} {
		data, err := os.ReadFile(filepath.Join(m.vault.Root, filename))
		if err != nil {
			continue
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}

// ExportVault regenerates the projected vault (C3) from the current entry
// set, preserving the root artefacts across the cycle, and notes the write
// with the watcher so it can suppress the resulting fsnotify events.
func (m *MemoryManager) ExportVault() (ExportSummary, error) {
	entries := m.Entries()
	summary, err := m.vault.ExportVault(entries)
	if err != nil {
		return summary, err
	}
	logUnchanged(summary)

	if m.watcher != nil {
		for filename, tier := range kvArtefactTiers {
			top := topEntriesForTier(entries, tier, m.vault.KVTierLimit)
			body, err := bodyYAML(top)
			if err != nil {
				continue
			}
			m.watcher.NoteOwnWrite(filename, checksumOf(body))
		}
	}
	return summary, nil
}

// StartWatcher launches C4's filesystem watcher over the vault root,
// recording externally-edited artefacts as memory entries. The returned
// function stops the watcher.
func (m *MemoryManager) StartWatcher(ctx context.Context) (func(), error) {
	record := func(e Entry) error {
		return m.Append(e)
	}
	w := NewWatcher(m.vault.Root, record)
	m.watcher = w

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := w.Run(watchCtx); err != nil {
			logger.Warn("vault watcher stopped", "err", err)
		}
	}()
	return cancel, nil
}
