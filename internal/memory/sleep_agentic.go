package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aigent/aigent/internal/llm"
)

// AgenticInsights is the structured instruction set a single agentic sleep
// pass (or one multi-agent specialist) can produce, using spec.md's own
// vocabulary: PROMOTE, RETIRE, MERGE, STYLE_UPDATE, GOAL_ADD, VALENCE
// (spec §4.7 Agentic). This intentionally diverges from the original Rust
// implementation's LEARNED/FOLLOW_UP/REFLECT/... vocabulary — see
// DESIGN.md's Open Question resolution.
type AgenticInsights struct {
	Promotions []PromoteInstruction
	Retire     []string
	Merges     []MergeInstruction
	StyleUpdates []string
	GoalAdds     []string
	Valence      []ValenceInstruction
}

type PromoteInstruction struct {
	IDShort    string
	TargetTier Tier
}

type MergeInstruction struct {
	IDShorts []string
	Content  string
}

type ValenceInstruction struct {
	IDShort string
	Score   float64
}

const agenticSleepResponseFormat = `Answer using ONLY the following line-prefixed instructions. Use NONE where nothing applies; omit a key entirely if you have nothing more to say for it.

PROMOTE: <id_short :: target_tier> (target_tier one of semantic, procedural, reflective, user_profile, core)
RETIRE: <id_short> (retire a stale or superseded Core/Semantic entry)
MERGE: <id_short1,id_short2,... :: synthesis content> (consolidate multiple entries into one)
STYLE_UPDATE: <one sentence refining communication style, or NONE>
GOAL_ADD: <one new long-term goal, or NONE>
VALENCE: <id_short :: score> (score in [-1.0, 1.0]; correct the emotional tone of a memory whose valence was clearly wrong)`

// BuildAgenticSleepPrompt assembles the identity-grounded prompt for a
// single-agent agentic sleep pass: identity context plus a sample of
// recent Episodic/Reflective entries (spec §4.7).
func BuildAgenticSleepPrompt(identityCtx string, sample []Entry) string {
	var b strings.Builder
	b.WriteString(identityCtx)
	b.WriteString("\n\nYou are performing nightly memory consolidation. Review the memories below.\n\n")
	b.WriteString("RECENT MEMORIES:\n")
	if len(sample) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, e := range sample {
		fmt.Fprintf(&b, "  [%s][%s] %s\n", shortID(e.ID), e.Tier, truncate(e.Content, 250))
	}
	b.WriteString("\n")
	b.WriteString(agenticSleepResponseFormat)
	return b.String()
}

// RunAgenticSleep calls the LLM with the agentic sleep prompt and returns
// the parsed instructions. A non-nil error means the caller (single-agent
// mode, or a multi-agent specialist slot) should fall back per spec §4.7's
// recoverable-failure policy.
func RunAgenticSleep(ctx context.Context, model llm.LLM, prompt string) (AgenticInsights, error) {
	reply, err := model.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return AgenticInsights{}, fmt.Errorf("agentic sleep chat: %w", err)
	}
	return ParseAgenticInsights(reply), nil
}

// ParseAgenticInsights parses one LLM reply into AgenticInsights, lenient
// to unknown/malformed lines (grounded on
// original_source/crates/memory/src/sleep.rs::parse_agentic_insights, with
// spec.md's vocabulary substituted for the original's).
func ParseAgenticInsights(reply string) AgenticInsights {
	var out AgenticInsights

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case hasKey(line, "PROMOTE:"):
			rest := stripKey(line, "PROMOTE:")
			if isNoneLine(rest) {
				continue
			}
			id, tier, ok := splitPair(rest)
			if ok {
				out.Promotions = append(out.Promotions, PromoteInstruction{IDShort: id, TargetTier: Tier(strings.ToLower(tier))})
			}
		case hasKey(line, "RETIRE:"):
			rest := stripKey(line, "RETIRE:")
			if isNoneLine(rest) {
				continue
			}
			id := strings.TrimSpace(strings.Fields(rest)[0])
			if id != "" {
				out.Retire = append(out.Retire, id)
			}
		case hasKey(line, "MERGE:"):
			rest := stripKey(line, "MERGE:")
			if isNoneLine(rest) {
				continue
			}
			idsCSV, content, ok := splitPair(rest)
			if ok {
				ids := strings.Split(idsCSV, ",")
				for i := range ids {
					ids[i] = strings.TrimSpace(ids[i])
				}
				out.Merges = append(out.Merges, MergeInstruction{IDShorts: ids, Content: content})
			}
		case hasKey(line, "STYLE_UPDATE:"):
			rest := stripKey(line, "STYLE_UPDATE:")
			if !isNoneLine(rest) {
				out.StyleUpdates = append(out.StyleUpdates, rest)
			}
		case hasKey(line, "GOAL_ADD:"):
			rest := stripKey(line, "GOAL_ADD:")
			if !isNoneLine(rest) {
				out.GoalAdds = append(out.GoalAdds, rest)
			}
		case hasKey(line, "VALENCE:"):
			rest := stripKey(line, "VALENCE:")
			if isNoneLine(rest) {
				continue
			}
			id, scoreStr, ok := splitPair(rest)
			if ok {
				if score, err := strconv.ParseFloat(strings.TrimSpace(scoreStr), 64); err == nil {
					out.Valence = append(out.Valence, ValenceInstruction{IDShort: id, Score: clamp(-1, 1, score)})
				}
			}
		}
	}

	return out
}

func hasKey(line, key string) bool { return strings.HasPrefix(line, key) }

func stripKey(line, key string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, key))
}

func isNoneLine(s string) bool {
	low := strings.ToLower(strings.TrimSpace(s))
	return low == "" || low == "none"
}

func splitPair(s string) (string, string, bool) {
	parts := strings.SplitN(s, "::", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	a := strings.TrimSpace(parts[0])
	b := strings.TrimSpace(parts[1])
	if a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// entryByShortID looks up an entry by the first 8 characters of its UUID,
// preferring the most recent non-tombstone match.
func entryByShortID(entries []Entry, shortID string) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		if strings.HasPrefix(e.ID, shortID) {
			if !found || e.CreatedAt.After(best.CreatedAt) {
				best = e
				found = true
			}
		}
	}
	return best, found
}

// ApplyAgenticInsights converts AgenticInsights into new log entries ready
// for Append. Because the event log is append-only, every mutation is
// expressed as a new entry (plus a tombstone of whatever it supersedes)
// carrying a "sleep:*" provenance source, per spec §4.7's "writes a
// sleep:* provenance entry for each action".
func ApplyAgenticInsights(entries []Entry, insights AgenticInsights) []Entry {
	var out []Entry

	for _, p := range insights.Promotions {
		src, ok := entryByShortID(entries, p.IDShort)
		if !ok || !p.TargetTier.Valid() {
			continue
		}
		promoted := NewEntry(p.TargetTier, src.Content, "sleep:promote:"+p.IDShort)
		promoted.Confidence = src.Confidence
		promoted.Valence = src.Valence
		promoted.Tags = src.Tags
		out = append(out, promoted, tombstoneOf(src))
	}

	mergedIDs := map[string]bool{}
	for _, m := range insights.Merges {
		var sources []Entry
		for _, id := range m.IDShorts {
			if e, ok := entryByShortID(entries, id); ok {
				sources = append(sources, e)
				mergedIDs[id] = true
			}
		}
		if len(sources) == 0 {
			continue
		}
		tier := sources[0].Tier
		merged := NewEntry(tier, m.Content, "sleep:merge")
		merged.Confidence = avgConfidence(sources)
		out = append(out, merged)
		for _, s := range sources {
			out = append(out, tombstoneOf(s))
		}
	}

	for _, id := range insights.Retire {
		if mergedIDs[id] {
			// retire loses to merge: a merge already supersedes this entry.
			continue
		}
		if e, ok := entryByShortID(entries, id); ok {
			out = append(out, tombstoneOf(e))
		}
	}

	for _, s := range insights.StyleUpdates {
		e := NewEntry(TierUserProfile, "style: "+s, "sleep:style_update")
		e.Confidence = 0.7
		out = append(out, e)
	}

	for _, g := range insights.GoalAdds {
		e := NewEntry(TierUserProfile, "goal: "+g, "sleep:goal_add")
		e.Confidence = 0.6
		out = append(out, e)
	}

	for _, v := range insights.Valence {
		src, ok := entryByShortID(entries, v.IDShort)
		if !ok {
			continue
		}
		note := NewEntry(TierReflective, fmt.Sprintf("valence correction for %q: %.2f -> %.2f", truncate(src.Content, 80), src.Valence, v.Score), "sleep:valence:"+v.IDShort)
		note.Confidence = 0.9
		note.Valence = v.Score
		out = append(out, note)
	}

	return out
}

func avgConfidence(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Confidence
	}
	return sum / float64(len(entries))
}

// SampleForAgenticSleep returns the Episodic/Reflective entries to show the
// LLM: newest first, capped at n.
func SampleForAgenticSleep(entries []Entry, n int) []Entry {
	var candidates []Entry
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		if e.Tier == TierEpisodic || e.Tier == TierReflective {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
