package memory

import (
	"math"
	"testing"
	"time"
)

func TestTokenizeFiltersStopWordsAndShortTokens(t *testing.T) {
	toks := Tokenize("The cat and a dog ran to the store")
	for _, tok := range toks {
		if retrievalStopWords[tok] {
			t.Errorf("stop word %q leaked into tokens", tok)
		}
		if len(tok) < 3 {
			t.Errorf("short token %q leaked into tokens", tok)
		}
	}
}

func TestRecencyScoreBounds(t *testing.T) {
	now := time.Now().UTC()
	fresh := RecencyScore(now, now)
	if math.Abs(fresh-1.0) > 1e-9 {
		t.Errorf("expected recency 1.0 for age 0, got %v", fresh)
	}
	old := RecencyScore(now.Add(-48*time.Hour), now)
	if math.Abs(old-0.5) > 1e-9 {
		t.Errorf("expected recency 0.5 at the 48h half-life, got %v", old)
	}
}

func TestLexicalRelevanceOverlap(t *testing.T) {
	q := Tokenize("tea preferences")
	rel := LexicalRelevance(q, "I really enjoy drinking tea in the morning")
	if rel <= 0 {
		t.Errorf("expected positive overlap, got %v", rel)
	}
	none := LexicalRelevance(q, "completely unrelated content about rockets")
	if none != 0 {
		t.Errorf("expected zero overlap, got %v", none)
	}
}

func TestCosineSimilarityClampedAndSymmetric(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	if sim := CosineSimilarity(a, b); math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("expected identical vectors to score 1.0, got %v", sim)
	}
	if sim := CosineSimilarity(nil, b); sim != 0 {
		t.Errorf("expected 0 for missing embedding, got %v", sim)
	}
	c := []float32{-1, 0, 0}
	if sim := CosineSimilarity(a, c); sim != 0 {
		t.Errorf("expected negative similarity clamped to 0, got %v", sim)
	}
}

func TestScoreEntryWeightsSumToOneWithoutEmbedding(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(TierSemantic, "some memory content about tea", "user")
	e.Confidence = 1.0

	// Scoring a maximally-scoring entry (all signals at 1.0) exercises the
	// full weighted sum; with no embedding available the embedding weight
	// must be redistributed, not dropped, so the ceiling is still 1.0 when
	// every remaining signal is at its maximum.
	e.CreatedAt = now
	score := ScoreEntry(e, Tokenize("some memory content about tea"), nil, now)
	if score <= 0 || score > 1.0001 {
		t.Errorf("expected score in (0,1], got %v", score)
	}
}

func TestRetrieveAlwaysIncludesPinnedTiers(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{
		NewEntry(TierCore, "core fact, irrelevant to query", "belief"),
		NewEntry(TierUserProfile, "profile fact, irrelevant to query", "user"),
	}
	for i := 0; i < 20; i++ {
		entries = append(entries, NewEntry(TierEpisodic, "irrelevant filler entry", "user"))
	}

	results := Retrieve(entries, RetrieveOptions{Query: "something else entirely", Limit: 5, Now: now})

	pinnedSeen := 0
	for _, r := range results {
		if r.Pinned {
			pinnedSeen++
		}
	}
	if pinnedSeen != 2 {
		t.Errorf("expected both pinned entries present regardless of rank, got %d", pinnedSeen)
	}
}

func TestRetrieveLexicalMatchRanksFirstAmongNonPinned(t *testing.T) {
	now := time.Now().UTC()
	var entries []Entry
	for i := 0; i < 9; i++ {
		entries = append(entries, NewEntry(TierEpisodic, "filler content about weather", "user"))
	}
	target := NewEntry(TierEpisodic, "I really like drinking green tea every morning", "user")
	entries = append(entries, target)

	results := Retrieve(entries, RetrieveOptions{Query: "green tea morning", Limit: 10, Now: now})
	if len(results) == 0 || results[0].Entry.ID != target.ID {
		t.Errorf("expected lexically matching entry to rank first, got %+v", results)
	}
}
