package memory

import "testing"

func TestScoreValencePositiveText(t *testing.T) {
	score := ScoreValence("This is amazing! I love it, great success!")
	if score <= 0 {
		t.Errorf("expected positive score, got %v", score)
	}
}

func TestScoreValenceNegativeText(t *testing.T) {
	score := ScoreValence("I'm so frustrated, this is broken and everything failed")
	if score >= 0 {
		t.Errorf("expected negative score, got %v", score)
	}
}

func TestScoreValenceNegationWindow(t *testing.T) {
	score := ScoreValence("not a problem at all")
	if score < 0 {
		t.Errorf("negated negative %q should score >= 0, got %v", "not a problem at all", score)
	}
}

func TestScoreValenceClampedToRange(t *testing.T) {
	pos := ScoreValence("amazing fantastic wonderful great love excited happy solved success excellent brilliant")
	neg := ScoreValence("frustrated confused error failed worried stuck broken terrible awful wrong bad")
	if pos > 1.0 || pos < -1.0 {
		t.Errorf("positive score %v out of [-1,1]", pos)
	}
	if neg > 1.0 || neg < -1.0 {
		t.Errorf("negative score %v out of [-1,1]", neg)
	}
}

func TestScoreValenceAllCapsBonus(t *testing.T) {
	score := ScoreValence("It WORKS now, totally DONE")
	if score <= 0 {
		t.Errorf("expected positive score for caps emphasis, got %v", score)
	}
}

func TestNewEntryScoresValence(t *testing.T) {
	e := NewEntry(TierEpisodic, "I love this, it works great!", "user")
	if e.Valence <= 0 {
		t.Errorf("expected NewEntry to score a positive valence, got %v", e.Valence)
	}
}
