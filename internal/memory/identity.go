package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Identity is the derived, non-authoritative view used to ground every LLM
// call (spec §3 IdentityKernel, §4.12).
type Identity struct {
	CoreBeliefs        []string          `json:"core_beliefs"`
	CommunicationStyle string            `json:"communication_style"`
	TraitScores        map[string]float64 `json:"trait_scores"`
	LongGoals          []string          `json:"long_goals"`
	RelationshipMilestones []string      `json:"relationship_milestones"`
	RebuiltAt          time.Time         `json:"rebuilt_at"`
}

const identityTopN = 10
const maxLongGoals = 10

// IdentityKernel rebuilds Identity lazily from memory and persists a snapshot
// for fast boot. It is a stateless function of memory plus the on-disk
// snapshot, not an independent source of truth.
type IdentityKernel struct {
	mu           sync.RWMutex
	snapshotPath string
	current      Identity
	dirty        bool
}

func NewIdentityKernel(snapshotPath string) *IdentityKernel {
	k := &IdentityKernel{snapshotPath: snapshotPath}
	if data, err := os.ReadFile(snapshotPath); err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err == nil {
			k.current = id
		}
	}
	return k
}

// Rebuild recomputes Identity from the current in-memory entry set: top-N
// Core entries by confidence, communication style and trait scores mined
// from UserProfile content, deduped long_goals (max 10), and relationship
// milestones from UserProfile entries whose content mentions "relationship".
func (k *IdentityKernel) Rebuild(entries []Entry) Identity {
	var core []Entry
	var profile []Entry
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		switch e.Tier {
		case TierCore:
			core = append(core, e)
		case TierUserProfile:
			profile = append(profile, e)
		}
	}
	sort.SliceStable(core, func(i, j int) bool { return core[i].Confidence > core[j].Confidence })
	if len(core) > identityTopN {
		core = core[:identityTopN]
	}

	id := Identity{
		TraitScores: map[string]float64{},
		RebuiltAt:   time.Now().UTC(),
	}
	for _, e := range core {
		id.CoreBeliefs = append(id.CoreBeliefs, e.Content)
	}

	goalSeen := map[string]bool{}
	for _, e := range profile {
		lc := strings.ToLower(e.Content)
		switch {
		case strings.Contains(lc, "style:"):
			id.CommunicationStyle = strings.TrimSpace(e.Content[strings.Index(e.Content, ":")+1:])
		case strings.Contains(lc, "trait:"):
			parseTraitLine(e.Content, id.TraitScores)
		case strings.Contains(lc, "goal:"):
			goal := strings.TrimSpace(e.Content[strings.Index(e.Content, ":")+1:])
			if goal != "" && !goalSeen[goal] && len(id.LongGoals) < maxLongGoals {
				goalSeen[goal] = true
				id.LongGoals = append(id.LongGoals, goal)
			}
		case strings.Contains(lc, "relationship"):
			id.RelationshipMilestones = append(id.RelationshipMilestones, e.Content)
		}
	}
	if id.CommunicationStyle == "" {
		id.CommunicationStyle = "direct and warm"
	}

	k.mu.Lock()
	k.current = id
	k.dirty = true
	k.mu.Unlock()
	return id
}

func parseTraitLine(content string, into map[string]float64) {
	// Expected shape: "trait: curiosity=0.8" — lenient, ignores malformed lines.
	idx := strings.Index(content, ":")
	if idx < 0 {
		return
	}
	rest := strings.TrimSpace(content[idx+1:])
	parts := strings.SplitN(rest, "=", 2)
	if len(parts) != 2 {
		return
	}
	var score float64
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%f", &score); err == nil {
		into[strings.TrimSpace(parts[0])] = score
	}
}

// Current returns the last rebuilt (or snapshot-loaded) Identity.
func (k *IdentityKernel) Current() Identity {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// Persist writes the current Identity to the snapshot path for fast boot.
func (k *IdentityKernel) Persist() error {
	k.mu.Lock()
	id := k.current
	dirty := k.dirty
	k.dirty = false
	k.mu.Unlock()

	if !dirty {
		return nil
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity snapshot: %w", err)
	}
	if err := os.WriteFile(k.snapshotPath, data, 0o644); err != nil {
		return fmt.Errorf("write identity snapshot: %w", err)
	}
	return nil
}

// TopTraits returns up to n trait names sorted by score descending.
func (id Identity) TopTraits(n int) []string {
	type kv struct {
		k string
		v float64
	}
	kvs := make([]kv, 0, len(id.TraitScores))
	for k, v := range id.TraitScores {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].v > kvs[j].v })
	if n > len(kvs) {
		n = len(kvs)
	}
	out := make([]string, 0, n)
	for _, e := range kvs[:n] {
		out = append(out, e.k)
	}
	return out
}

// PromptBlock renders the IDENTITY: block described in spec §4.5 step 2:
// style, top-3 traits, long_goals.
func (id Identity) PromptBlock() string {
	var b strings.Builder
	b.WriteString("IDENTITY:\n")
	fmt.Fprintf(&b, "style: %s\n", id.CommunicationStyle)
	if traits := id.TopTraits(3); len(traits) > 0 {
		fmt.Fprintf(&b, "top traits: %s\n", strings.Join(traits, ", "))
	}
	if len(id.LongGoals) > 0 {
		fmt.Fprintf(&b, "long-term goals: %s\n", strings.Join(id.LongGoals, "; "))
	}
	return b.String()
}

// IdentityContext renders a richer block used to ground sleep/specialist
// prompts (supplemented from original_source/multi_sleep.rs::build_identity_context):
// the same PromptBlock plus core beliefs and relationship milestones, so
// every distillation pass sees full identity grounding, not just the
// per-turn summary.
func (id Identity) IdentityContext() string {
	var b strings.Builder
	b.WriteString(id.PromptBlock())
	if len(id.CoreBeliefs) > 0 {
		b.WriteString("core beliefs:\n")
		for _, c := range id.CoreBeliefs {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if len(id.RelationshipMilestones) > 0 {
		b.WriteString("relationship milestones:\n")
		for _, m := range id.RelationshipMilestones {
			fmt.Fprintf(&b, "  - %s\n", m)
		}
	}
	return b.String()
}
