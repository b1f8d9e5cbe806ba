package memory

import "testing"

func TestParseAgenticInsightsExtractsAllFields(t *testing.T) {
	reply := `
PROMOTE: abcd1234 :: semantic
RETIRE: ef567890
MERGE: aaaa1111,bbbb2222 :: synthesized takeaway
STYLE_UPDATE: be more concise
GOAL_ADD: learn the user's timezone preferences
VALENCE: cccc3333 :: 0.85
`
	insights := ParseAgenticInsights(reply)

	if len(insights.Promotions) != 1 || insights.Promotions[0].IDShort != "abcd1234" || insights.Promotions[0].TargetTier != TierSemantic {
		t.Fatalf("unexpected promotions: %+v", insights.Promotions)
	}
	if len(insights.Retire) != 1 || insights.Retire[0] != "ef567890" {
		t.Fatalf("unexpected retire: %+v", insights.Retire)
	}
	if len(insights.Merges) != 1 || len(insights.Merges[0].IDShorts) != 2 {
		t.Fatalf("unexpected merges: %+v", insights.Merges)
	}
	if len(insights.StyleUpdates) != 1 {
		t.Fatalf("unexpected style updates: %+v", insights.StyleUpdates)
	}
	if len(insights.GoalAdds) != 1 {
		t.Fatalf("unexpected goal adds: %+v", insights.GoalAdds)
	}
	if len(insights.Valence) != 1 || insights.Valence[0].Score != 0.85 {
		t.Fatalf("unexpected valence: %+v", insights.Valence)
	}
}

func TestParseAgenticInsightsHandlesNone(t *testing.T) {
	reply := "PROMOTE: NONE\nRETIRE: none\nSTYLE_UPDATE: NONE\n"
	insights := ParseAgenticInsights(reply)
	if len(insights.Promotions) != 0 || len(insights.Retire) != 0 || len(insights.StyleUpdates) != 0 {
		t.Fatalf("expected no instructions from NONE lines, got %+v", insights)
	}
}

func TestParseAgenticInsightsClampsValenceScore(t *testing.T) {
	reply := "VALENCE: abcd1234 :: 5.0"
	insights := ParseAgenticInsights(reply)
	if len(insights.Valence) != 1 || insights.Valence[0].Score != 1.0 {
		t.Fatalf("expected valence clamped to 1.0, got %+v", insights.Valence)
	}
}

func TestApplyAgenticInsightsPromote(t *testing.T) {
	e := NewEntry(TierEpisodic, "user likes concise answers", "user-chat")
	insights := AgenticInsights{Promotions: []PromoteInstruction{{IDShort: shortID(e.ID), TargetTier: TierSemantic}}}

	out := ApplyAgenticInsights([]Entry{e}, insights)
	if len(out) != 2 {
		t.Fatalf("expected promoted entry + tombstone, got %d entries", len(out))
	}
	if out[0].Tier != TierSemantic {
		t.Errorf("expected promoted tier semantic, got %s", out[0].Tier)
	}
	if !out[1].IsTombstone() {
		t.Errorf("expected second entry to be a tombstone")
	}
}

func TestApplyAgenticInsightsRetireLosesToMerge(t *testing.T) {
	e1 := NewEntry(TierCore, "first core belief", "belief")
	e2 := NewEntry(TierCore, "second core belief", "belief")

	insights := AgenticInsights{
		Retire: []string{shortID(e1.ID)},
		Merges: []MergeInstruction{{IDShorts: []string{shortID(e1.ID), shortID(e2.ID)}, Content: "unified belief"}},
	}

	out := ApplyAgenticInsights([]Entry{e1, e2}, insights)

	retireTombstones := 0
	mergedFound := false
	for _, e := range out {
		if e.Content == "unified belief" {
			mergedFound = true
		}
		if e.IsTombstone() {
			retireTombstones++
		}
	}
	if !mergedFound {
		t.Fatal("expected merged entry in output")
	}
	// e1 and e2 should each be tombstoned exactly once via the merge path,
	// not a second time via the (losing) retire instruction.
	if retireTombstones != 2 {
		t.Fatalf("expected exactly 2 tombstones (from merge only), got %d", retireTombstones)
	}
}

func TestApplyAgenticInsightsStyleAndGoal(t *testing.T) {
	insights := AgenticInsights{
		StyleUpdates: []string{"be warmer"},
		GoalAdds:     []string{"help user ship the release"},
	}
	out := ApplyAgenticInsights(nil, insights)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0].Tier != TierUserProfile || out[1].Tier != TierUserProfile {
		t.Fatalf("expected user_profile tier entries, got %+v", out)
	}
}
