package memory

import (
	"strings"
	"time"
)

// PassiveSleepConfig configures the heuristic-only consolidation pass
// (spec §4.7 Passive). Zero values take the documented defaults.
type PassiveSleepConfig struct {
	ForgetEpisodicAfterDays int
	ForgetMinConfidence     float64
}

func (c PassiveSleepConfig) minConfidence() float64 {
	if c.ForgetMinConfidence <= 0 {
		return 0.30
	}
	return c.ForgetMinConfidence
}

// PassiveSleepResult lists the new log entries the caller should Append:
// promotions (new entries at a higher tier plus a tombstone of the source),
// semantic prunes (tombstones), and forgetting-pass tombstones.
type PassiveSleepResult struct {
	Promoted       []Entry
	Pruned         []Entry
	Forgotten      []Entry
	PromotionCount int
	PruneCount     int
	ForgetCount    int
}

// RunPassiveSleep scans Episodic entries and promotes qualifying ones to
// Semantic, prunes stale low-confidence Semantic entries, and optionally
// runs a forgetting pass over old low-confidence Episodic entries
// (grounded on original_source/crates/memory/src/sleep.rs::distill, with
// the additional pruning/forgetting steps spec.md §4.7 adds).
func RunPassiveSleep(entries []Entry, cfg PassiveSleepConfig, now time.Time) PassiveSleepResult {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	repeatKey := func(e Entry) string {
		if e.ContentHash != "" {
			return e.ContentHash
		}
		return ContentHash(e.Tier, e.Content)
	}

	contentCounts := map[string]int{}
	for _, e := range entries {
		if e.IsTombstone() || strings.TrimSpace(e.Content) == "" {
			continue
		}
		contentCounts[repeatKey(e)]++
	}

	var result PassiveSleepResult

	for _, e := range entries {
		if e.IsTombstone() || e.Tier != TierEpisodic {
			continue
		}
		if strings.HasPrefix(e.Source, "sleep:") {
			continue
		}

		repeats := contentCounts[repeatKey(e)]
		ageDays := now.Sub(e.CreatedAt).Hours() / 24

		eligible := repeats >= 2 ||
			absf(e.Valence) > 0.3 ||
			ageDays > 30 ||
			e.Source == "user-confirmed"

		if !eligible {
			continue
		}

		promoted := NewEntry(TierSemantic, e.Content, "sleep:promote:"+shortID(e.ID))
		promoted.Confidence = e.Confidence
		promoted.Valence = e.Valence
		promoted.Tags = e.Tags

		result.Promoted = append(result.Promoted, promoted)
		result.Promoted = append(result.Promoted, tombstoneOf(e))
		result.PromotionCount++
	}

	for _, e := range entries {
		if e.IsTombstone() || e.Tier != TierSemantic {
			continue
		}
		ageDays := now.Sub(e.CreatedAt).Hours() / 24
		if ageDays > 90 && e.Confidence < 0.5 {
			result.Pruned = append(result.Pruned, tombstoneOf(e))
			result.PruneCount++
		}
	}

	if cfg.ForgetEpisodicAfterDays > 0 {
		minConf := cfg.minConfidence()
		for _, e := range entries {
			if e.IsTombstone() || e.Tier != TierEpisodic {
				continue
			}
			ageDays := now.Sub(e.CreatedAt).Hours() / 24
			if ageDays > float64(cfg.ForgetEpisodicAfterDays) && e.Confidence < minConf {
				result.Forgotten = append(result.Forgotten, tombstoneOf(e))
				result.ForgetCount++
			}
		}
	}

	return result
}

func tombstoneOf(e Entry) Entry {
	t := NewEntry(e.Tier, e.Content, "tombstone:"+e.ID)
	t.Confidence = 0
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
