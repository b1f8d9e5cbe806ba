package memory

import "testing"

func TestParseReflectionExtractsBeliefsAndReflections(t *testing.T) {
	response := `Sure, here you go:
{"beliefs": [{"claim": "user prefers dark mode", "confidence": 0.9}], "reflections": ["user seems stressed about deadlines"]}
Hope that helps!`

	result, err := parseReflection(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Beliefs) != 1 || result.Beliefs[0].Claim != "user prefers dark mode" {
		t.Fatalf("unexpected beliefs: %+v", result.Beliefs)
	}
	if len(result.Reflections) != 1 {
		t.Fatalf("unexpected reflections: %+v", result.Reflections)
	}
}

func TestParseReflectionCapsCounts(t *testing.T) {
	response := `{"beliefs": [
		{"claim": "a", "confidence": 0.5},
		{"claim": "b", "confidence": 0.5},
		{"claim": "c", "confidence": 0.5},
		{"claim": "d", "confidence": 0.5}
	], "reflections": ["x", "y", "z"]}`

	result, err := parseReflection(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Beliefs) != maxReflectedBeliefs {
		t.Errorf("expected %d beliefs, got %d", maxReflectedBeliefs, len(result.Beliefs))
	}
	if len(result.Reflections) != maxReflectedReflections {
		t.Errorf("expected %d reflections, got %d", maxReflectedReflections, len(result.Reflections))
	}
}

func TestParseReflectionNoJSONObject(t *testing.T) {
	if _, err := parseReflection("no json here"); err == nil {
		t.Fatal("expected error for missing JSON object")
	}
}

func TestApplyReflectionBroadcastsEvents(t *testing.T) {
	result := ReflectionResult{
		Beliefs:     []ReflectedBelief{{Claim: "likes tea", Confidence: 0.8}},
		Reflections: []string{"asked about tea twice this week"},
	}
	entries, events := ApplyReflection(result, "reflection")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Tier != TierCore || entries[0].Source != "belief" {
		t.Errorf("expected belief entry to be Core/belief, got %+v", entries[0])
	}
	if entries[1].Tier != TierReflective {
		t.Errorf("expected reflection entry to be Reflective, got %+v", entries[1])
	}
	if len(events) != 2 || events[0].Kind != EventBeliefAdded || events[1].Kind != EventReflectionInsight {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestApplyReflectionSkipsBlank(t *testing.T) {
	result := ReflectionResult{
		Beliefs:     []ReflectedBelief{{Claim: "   ", Confidence: 0.5}},
		Reflections: []string{""},
	}
	entries, events := ApplyReflection(result, "reflection")
	if len(entries) != 0 || len(events) != 0 {
		t.Fatalf("expected no entries/events for blank content, got %d/%d", len(entries), len(events))
	}
}
