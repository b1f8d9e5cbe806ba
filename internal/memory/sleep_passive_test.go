package memory

import (
	"testing"
	"time"
)

func TestPassiveSleepPromotesRepeatedEpisodic(t *testing.T) {
	now := time.Now().UTC()
	e1 := NewEntry(TierEpisodic, "user asked about the weather", "user-chat")
	e1.CreatedAt = now.Add(-time.Hour)
	e2 := NewEntry(TierEpisodic, "user asked about the weather", "user-chat")
	e2.CreatedAt = now.Add(-2 * time.Hour)

	result := RunPassiveSleep([]Entry{e1, e2}, PassiveSleepConfig{}, now)
	if result.PromotionCount == 0 {
		t.Fatal("expected promotions for repeated content")
	}
}

func TestPassiveSleepPromotesEmotionallySalient(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(TierEpisodic, "a singular emotional memory", "user-chat")
	e.Valence = 0.9
	e.CreatedAt = now

	result := RunPassiveSleep([]Entry{e}, PassiveSleepConfig{}, now)
	if result.PromotionCount != 1 {
		t.Fatalf("expected 1 promotion, got %d", result.PromotionCount)
	}
}

func TestPassiveSleepSkipsIneligibleEpisodic(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(TierEpisodic, "an ordinary unremarkable entry", "user-chat")
	e.CreatedAt = now

	result := RunPassiveSleep([]Entry{e}, PassiveSleepConfig{}, now)
	if result.PromotionCount != 0 {
		t.Fatalf("expected 0 promotions, got %d", result.PromotionCount)
	}
}

func TestPassiveSleepPrunesStaleSemantic(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(TierSemantic, "a long-stale low-confidence fact", "sleep:promote:abcd1234")
	e.CreatedAt = now.Add(-100 * 24 * time.Hour)
	e.Confidence = 0.3

	result := RunPassiveSleep([]Entry{e}, PassiveSleepConfig{}, now)
	if result.PruneCount != 1 {
		t.Fatalf("expected 1 prune, got %d", result.PruneCount)
	}
}

func TestPassiveSleepForgettingPass(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(TierEpisodic, "an old low-confidence chat fragment", "user-chat")
	e.CreatedAt = now.Add(-40 * 24 * time.Hour)
	e.Confidence = 0.1

	result := RunPassiveSleep([]Entry{e}, PassiveSleepConfig{ForgetEpisodicAfterDays: 30}, now)
	if result.ForgetCount != 1 {
		t.Fatalf("expected 1 forgotten entry, got %d", result.ForgetCount)
	}
}

func TestPassiveSleepForgettingPassRespectsMinConfidence(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(TierEpisodic, "an old but still fairly confident fact", "user-chat")
	e.CreatedAt = now.Add(-40 * 24 * time.Hour)
	e.Confidence = 0.8

	result := RunPassiveSleep([]Entry{e}, PassiveSleepConfig{ForgetEpisodicAfterDays: 30}, now)
	if result.ForgetCount != 0 {
		t.Fatalf("expected 0 forgotten entries for high-confidence entry, got %d", result.ForgetCount)
	}
}
