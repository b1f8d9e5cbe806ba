package memory

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Scoring weights (spec §4.5). They sum to 1.
const (
	weightTier       = 0.35
	weightRecency    = 0.20
	weightLexical    = 0.25
	weightEmbedding  = 0.15
	weightConfidence = 0.05
)

var retrievalStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "as": true, "by": true, "that": true, "this": true, "it": true,
	"i": true, "you": true, "he": true, "she": true, "we": true, "they": true,
	"my": true, "your": true, "me": true, "do": true, "does": true, "did": true,
}

// Tokenize lowercases, strips punctuation, drops tokens shorter than 3
// characters, filters stop words, and returns a deduplicated, sorted token
// set. Mirrors original_source/retrieval.rs::tokenize.
func Tokenize(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(raw) < 3 || retrievalStopWords[raw] || seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

// RecencyScore decays monotonically with age using a 48-hour half-life,
// bounded in [0,1].
func RecencyScore(createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return 1.0 / (1.0 + ageHours/48.0)
}

// LexicalRelevance is the token-overlap ratio between a query's token set
// and an entry's token set.
func LexicalRelevance(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	entryTokens := map[string]bool{}
	for _, t := range Tokenize(content) {
		entryTokens[t] = true
	}
	if len(entryTokens) == 0 {
		return 0
	}
	overlap := 0
	for _, t := range queryTokens {
		if entryTokens[t] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTokens))
}

// CosineSimilarity returns the clamped [0,1] cosine similarity of a and b,
// or 0 if either is empty or of mismatched length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// ScoredEntry pairs an Entry with its retrieval score and whether it was
// pinned (Core/UserProfile/agent-perspective:* are always included
// regardless of rank).
type ScoredEntry struct {
	Entry Entry
	Score float64
	Pinned bool
}

// ScoreEntry computes the weighted composite score for one entry against a
// query. When queryEmbedding is nil (no embedding backend configured), the
// embedding weight is redistributed proportionally across the other four
// signals so the total always sums to 1 (spec §4.5, §8 invariant).
func ScoreEntry(e Entry, queryTokens []string, queryEmbedding []float32, now time.Time) float64 {
	tierScore := e.Tier.Priority()
	if strings.HasPrefix(e.Source, "agent-perspective:") {
		tierScore = TierCore.Priority()
	}
	recency := RecencyScore(e.CreatedAt, now)
	lexical := LexicalRelevance(queryTokens, e.Content)
	confidence := clamp01(e.Confidence)

	haveEmbedding := len(queryEmbedding) > 0 && len(e.Embedding) > 0
	if haveEmbedding {
		embed := CosineSimilarity(queryEmbedding, e.Embedding)
		return weightTier*tierScore + weightRecency*recency + weightLexical*lexical +
			weightEmbedding*embed + weightConfidence*confidence
	}

	// Redistribute the embedding weight proportionally across the other four
	// signals, preserving their relative ratios; the four redistributed
	// weights still sum to 1.
	remaining := weightTier + weightRecency + weightLexical + weightConfidence
	tierW := weightTier + weightEmbedding*(weightTier/remaining)
	recencyW := weightRecency + weightEmbedding*(weightRecency/remaining)
	lexicalW := weightLexical + weightEmbedding*(weightLexical/remaining)
	confidenceW := weightConfidence + weightEmbedding*(weightConfidence/remaining)

	return tierW*tierScore + recencyW*recency + lexicalW*lexical + confidenceW*confidence
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RetrieveOptions bounds and configures a single retrieval call.
type RetrieveOptions struct {
	Query          string
	QueryEmbedding  []float32
	Limit          int
	Now            time.Time
}

// Retrieve ranks entries against query options and returns the top Limit
// results, always including every Core/UserProfile/agent-perspective entry
// regardless of where it would otherwise rank (spec §4.5).
func Retrieve(entries []Entry, opts RetrieveOptions) []ScoredEntry {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	queryTokens := Tokenize(opts.Query)

	scored := make([]ScoredEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		pinned := e.Tier == TierCore || e.Tier == TierUserProfile || strings.HasPrefix(e.Source, "agent-perspective:")
		scored = append(scored, ScoredEntry{
			Entry:  e,
			Score:  ScoreEntry(e, queryTokens, opts.QueryEmbedding, now),
			Pinned: pinned,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Pinned != scored[j].Pinned {
			return scored[i].Pinned
		}
		return scored[i].Score > scored[j].Score
	})

	if opts.Limit > 0 {
		pinnedCount := 0
		for _, s := range scored {
			if s.Pinned {
				pinnedCount++
			}
		}
		limit := opts.Limit
		if limit < pinnedCount {
			limit = pinnedCount
		}
		if limit < len(scored) {
			scored = scored[:limit]
		}
	}
	return scored
}
