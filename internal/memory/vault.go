package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aigent/aigent/internal/logger"
)

const defaultKVTierLimit = 15

// kvArtefactTiers maps each root YAML KV summary artefact to its tier: Core,
// UserProfile and Reflective each get one file. Semantic, Procedural and
// Episodic entries have no root YAML artefact.
var kvArtefactTiers = map[string]Tier{
	"core_summary.yaml":        TierCore,
	"user_profile.yaml":        TierUserProfile,
	"reflective_opinions.yaml": TierReflective,
}

// allTiersOrdered lists all six tiers for sub-vault generation, correcting
// the original implementation's tier-index loop which only covered 4 of 6
// tiers (see SPEC_FULL.md).
var allTiersOrdered = []Tier{TierCore, TierUserProfile, TierReflective, TierSemantic, TierProcedural, TierEpisodic}

type kvBody struct {
	LastUpdated time.Time   `yaml:"last_updated"`
	Entries     []kvEntry   `yaml:"entries"`
}

type kvEntry struct {
	ID         string  `yaml:"id"`
	Content    string  `yaml:"content"`
	Source     string  `yaml:"source"`
	Confidence float64 `yaml:"confidence"`
	Valence    float64 `yaml:"valence"`
}

// Vault is the projector (C3): it derives human-readable Markdown/YAML
// artefacts from memory state and checksum-gates incremental writes.
type Vault struct {
	Root        string
	KVTierLimit int
}

func NewVault(root string, kvTierLimit int) *Vault {
	if kvTierLimit <= 0 {
		kvTierLimit = defaultKVTierLimit
	}
	return &Vault{Root: root, KVTierLimit: kvTierLimit}
}

// ExportSummary reports what SyncKVSummaries actually touched.
type ExportSummary struct {
	FilesWritten int
	Unchanged    []string
}

func topEntriesForTier(entries []Entry, tier Tier, limit int) []Entry {
	var filtered []Entry
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		if e.Tier == tier {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Confidence != filtered[j].Confidence {
			return filtered[i].Confidence > filtered[j].Confidence
		}
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].Valence > filtered[j].Valence
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// bodyYAML renders the entries list (without last_updated/checksum) so the
// checksum can be computed over exactly "the body with the checksum line
// removed" per spec §6 file formats.
func bodyYAML(entries []Entry) (string, error) {
	body := kvBody{Entries: make([]kvEntry, 0, len(entries))}
	for _, e := range entries {
		body.Entries = append(body.Entries, kvEntry{
			ID: e.ID, Content: e.Content, Source: e.Source,
			Confidence: e.Confidence, Valence: e.Valence,
		})
	}
	out, err := yaml.Marshal(body.Entries)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func checksumOf(body string) string {
	sum := sha256.Sum256([]byte(body))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// readChecksum extracts the "checksum: sha256:<hex>" line from an existing
// artefact file, if present, without needing to parse the full YAML.
func readChecksum(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "checksum:") {
			return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "checksum:")), true
		}
	}
	return "", false
}

func writeArtefact(path string, entries []Entry) (written bool, err error) {
	body, err := bodyYAML(entries)
	if err != nil {
		return false, fmt.Errorf("render body for %s: %w", path, err)
	}
	checksum := checksumOf(body)

	if existing, ok := readChecksum(path); ok && existing == checksum {
		return false, nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "last_updated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&out, "checksum: %s\n", checksum)
	out.WriteString(body)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(out.String()), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// SyncKVSummaries writes the three root YAML artefacts plus MEMORY.md,
// writing each only when its checksum differs from what's already on disk
// (spec §4.3 steps 1-4; idempotence law in spec §8: calling this twice with
// no intervening state change writes zero bytes on the second call).
func (v *Vault) SyncKVSummaries(entries []Entry) (ExportSummary, error) {
	summary := ExportSummary{}
	for filename, tier := range kvArtefactTiers {
		top := topEntriesForTier(entries, tier, v.KVTierLimit)
		path := filepath.Join(v.Root, filename)
		wrote, err := writeArtefact(path, top)
		if err != nil {
			return summary, err
		}
		if wrote {
			summary.FilesWritten++
		} else {
			summary.Unchanged = append(summary.Unchanged, filename)
		}
	}

	memoryMD := v.renderMemoryMD(entries)
	mdPath := filepath.Join(v.Root, "MEMORY.md")
	existing, _ := os.ReadFile(mdPath)
	if string(existing) != memoryMD {
		if err := os.MkdirAll(v.Root, 0o755); err != nil {
			return summary, fmt.Errorf("mkdir vault root: %w", err)
		}
		if err := os.WriteFile(mdPath, []byte(memoryMD), 0o644); err != nil {
			return summary, fmt.Errorf("write MEMORY.md: %w", err)
		}
		summary.FilesWritten++
	} else {
		summary.Unchanged = append(summary.Unchanged, "MEMORY.md")
	}

	return summary, nil
}

func (v *Vault) renderMemoryMD(entries []Entry) string {
	var b strings.Builder
	b.WriteString("# Memory\n\n")
	b.WriteString("Cross-reference of the agent's distilled memory. See [[core_summary]], ")
	b.WriteString("[[user_profile]], and [[reflective_opinions]] for the full tier summaries.\n\n")

	core := topEntriesForTier(entries, TierCore, 5)
	if len(core) > 0 {
		b.WriteString("## Core beliefs\n\n")
		for _, e := range core {
			fmt.Fprintf(&b, "- %s (see [[core_summary]])\n", e.Content)
		}
		b.WriteString("\n")
	}
	profile := topEntriesForTier(entries, TierUserProfile, 5)
	if len(profile) > 0 {
		b.WriteString("## About the user\n\n")
		for _, e := range profile {
			fmt.Fprintf(&b, "- %s (see [[user_profile]])\n", e.Content)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ExportVault performs a full projection: SyncKVSummaries for the four root
// artefacts, then a full rebuild of the notes/tiers/daily/topics sub-vault.
// The root artefacts are never deleted; only the four sub-directories are
// removed and regenerated (spec §4.3 step 5; see SPEC_FULL.md for the
// correction relative to the original implementation, which deleted the
// whole vault root).
func (v *Vault) ExportVault(entries []Entry) (ExportSummary, error) {
	summary, err := v.SyncKVSummaries(entries)
	if err != nil {
		return summary, err
	}
	if err := v.regenerateSubVault(entries); err != nil {
		return summary, fmt.Errorf("regenerate sub-vault: %w", err)
	}
	return summary, nil
}

func (v *Vault) regenerateSubVault(entries []Entry) error {
	for _, sub := range []string{"notes", "tiers", "daily", "topics"} {
		dir := filepath.Join(v.Root, sub)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean %s: %w", sub, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", sub, err)
		}
	}

	if err := v.writeTierIndexes(entries); err != nil {
		return err
	}
	if err := v.writeNotes(entries); err != nil {
		return err
	}
	if err := v.writeDailyNotes(entries); err != nil {
		return err
	}
	if err := v.writeTopics(entries); err != nil {
		return err
	}
	return nil
}

func (v *Vault) writeTierIndexes(entries []Entry) error {
	for _, tier := range allTiersOrdered {
		top := topEntriesForTier(entries, tier, v.KVTierLimit)
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", tier)
		for _, e := range top {
			fmt.Fprintf(&b, "- [[%s]] %s\n", noteName(e), truncate(e.Content, 160))
		}
		path := filepath.Join(v.Root, "tiers", string(tier)+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write tier index %s: %w", tier, err)
		}
	}
	return nil
}

func noteName(e Entry) string {
	id := e.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s", e.Tier, id)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (v *Vault) writeNotes(entries []Entry) error {
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "---\n")
		fmt.Fprintf(&b, "tier: %s\n", e.Tier)
		fmt.Fprintf(&b, "source: %s\n", e.Source)
		fmt.Fprintf(&b, "confidence: %.2f\n", e.Confidence)
		fmt.Fprintf(&b, "created_at: %s\n", e.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "---\n\n%s\n", e.Content)

		path := filepath.Join(v.Root, "notes", noteName(e)+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write note: %w", err)
		}
	}
	return nil
}

func (v *Vault) writeDailyNotes(entries []Entry) error {
	byDay := map[string][]Entry{}
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		day := e.CreatedAt.Format("2006-01-02")
		byDay[day] = append(byDay[day], e)
	}
	for day, es := range byDay {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", day)
		for _, e := range es {
			fmt.Fprintf(&b, "- [[%s]] %s\n", noteName(e), truncate(e.Content, 160))
		}
		path := filepath.Join(v.Root, "daily", day+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write daily note %s: %w", day, err)
		}
	}
	return nil
}

// vaultStopWords is a broader stop-word list than the retrieval tokenizer's,
// tuned for topic extraction (supplemented from original_source/vault.rs).
var vaultStopWords = map[string]bool{
	"about": true, "after": true, "again": true, "against": true, "because": true,
	"before": true, "being": true, "between": true, "could": true, "doing": true,
	"during": true, "having": true, "other": true, "should": true, "these": true,
	"those": true, "through": true, "under": true, "until": true, "where": true,
	"which": true, "while": true, "would": true, "there": true, "their": true,
	"something": true,
}

func extractTopics(entries []Entry, topN int) []string {
	freq := map[string]int{}
	for _, e := range entries {
		for _, raw := range strings.FieldsFunc(strings.ToLower(e.Content), func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
		}) {
			if len(raw) < 4 || vaultStopWords[raw] || retrievalStopWords[raw] {
				continue
			}
			freq[raw]++
		}
	}
	type kv struct {
		k string
		v int
	}
	kvs := make([]kv, 0, len(freq))
	for k, v := range freq {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].v != kvs[j].v {
			return kvs[i].v > kvs[j].v
		}
		return kvs[i].k < kvs[j].k
	})
	if topN > len(kvs) {
		topN = len(kvs)
	}
	out := make([]string, 0, topN)
	for _, e := range kvs[:topN] {
		out = append(out, e.k)
	}
	return out
}

func sanitizeTopicSlug(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func (v *Vault) writeTopics(entries []Entry) error {
	topics := extractTopics(entries, 6)
	for _, topic := range topics {
		var matching []Entry
		for _, e := range entries {
			if e.IsTombstone() {
				continue
			}
			if strings.Contains(strings.ToLower(e.Content), topic) {
				matching = append(matching, e)
			}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", topic)
		for _, e := range matching {
			fmt.Fprintf(&b, "- [[%s]] %s\n", noteName(e), truncate(e.Content, 160))
		}
		path := filepath.Join(v.Root, "topics", sanitizeTopicSlug(topic)+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write topic %s: %w", topic, err)
		}
	}
	return nil
}

// EnsureRoot creates the vault root directory if it doesn't exist yet. It
// never touches existing root artefacts.
func (v *Vault) EnsureRoot() error {
	if err := os.MkdirAll(v.Root, 0o755); err != nil {
		return fmt.Errorf("create vault root: %w", err)
	}
	return nil
}

// DeriveDefaultVaultPath derives <data-root>/vault as a sibling of
// <data-root>/memory, validated against the event log path convention
// (supplemented from original_source/manager/vault_sync.rs::derive_default_vault_path).
func DeriveDefaultVaultPath(eventLogPath string) (string, bool) {
	if filepath.Base(eventLogPath) != "events.jsonl" {
		return "", false
	}
	memDir := filepath.Dir(eventLogPath)
	if filepath.Base(memDir) != "memory" {
		return "", false
	}
	root := filepath.Dir(memDir)
	return filepath.Join(root, "vault"), true
}

func logUnchanged(summary ExportSummary) {
	if len(summary.Unchanged) > 0 {
		logger.Debug("vault artefacts unchanged", "files", summary.Unchanged)
	}
}
