package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Tier is the semantic class of a MemoryEntry; it governs injection priority
// and sleep behavior.
type Tier string

const (
	TierCore        Tier = "core"
	TierUserProfile Tier = "user_profile"
	TierReflective  Tier = "reflective"
	TierSemantic    Tier = "semantic"
	TierProcedural  Tier = "procedural"
	TierEpisodic    Tier = "episodic"
)

// Valid reports whether t is one of the six recognized tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierCore, TierUserProfile, TierReflective, TierSemantic, TierProcedural, TierEpisodic:
		return true
	}
	return false
}

// Priority is the fixed retrieval-priority ordering used by C5's tier
// signal.
func (t Tier) Priority() float64 {
	switch t {
	case TierCore:
		return 1.00
	case TierUserProfile:
		return 0.90
	case TierReflective:
		return 0.75
	case TierSemantic:
		return 0.65
	case TierProcedural:
		return 0.55
	case TierEpisodic:
		return 0.40
	}
	return 0
}

// Entry is the primary record of the memory engine (spec §3 MemoryEntry).
type Entry struct {
	ID          string    `json:"id"`
	Tier        Tier      `json:"tier"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	Valence     float64   `json:"valence"`
	CreatedAt   time.Time `json:"created_at"`
	Tags        []string  `json:"tags,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ContentHash string    `json:"content_hash"`
}

// ContentHash computes the stable dedup/index key for a (tier, content) pair.
func ContentHash(tier Tier, content string) string {
	h := sha256.Sum256([]byte(string(tier) + "\x00" + content))
	return hex.EncodeToString(h[:])
}

// NewEntry constructs an Entry with a fresh id, current timestamp, default
// confidence (0.5 unless overridden by the caller afterward), a
// heuristically-scored valence (ScoreValence), and a computed content hash.
// Callers that already know the correct valence (e.g. sleep promotions
// carrying a source entry's valence forward) overwrite the field afterward.
func NewEntry(tier Tier, content, source string) Entry {
	return Entry{
		ID:          uuid.New().String(),
		Tier:        tier,
		Content:     content,
		Source:      source,
		Confidence:  0.5,
		Valence:     ScoreValence(content),
		CreatedAt:   time.Now().UTC(),
		ContentHash: ContentHash(tier, content),
	}
}

// IsTombstone reports whether this entry is a retraction/deletion marker for
// another entry, identified by source convention "belief:retracted:<id>" or
// "tombstone:<id>".
func (e Entry) IsTombstone() bool {
	return hasPrefix(e.Source, "belief:retracted:") || hasPrefix(e.Source, "tombstone:")
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}

// Belief is a Core entry with source "belief". A belief is active iff no
// sibling entry exists with source "belief:retracted:<id>".
func IsBelief(e Entry) bool {
	return e.Tier == TierCore && e.Source == "belief"
}

// ToolSpec describes a registered tool for both LLM tool-use prompts and the
// `aigent tool list` CLI surface.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ToolParam `json:"params"`
}

type ToolParam struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// ToolCall is a single invocation request produced by the LLM tool-intent probe.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// ConversationTurn is the in-memory, non-persisted ring-buffer record of a
// single exchange (spec §3).
type ConversationTurn struct {
	Source        string    `json:"source"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Timestamp     time.Time `json:"timestamp"`
}
