package memory

import (
	"strings"
	"testing"
	"time"
)

func TestActiveBeliefsExcludesRetracted(t *testing.T) {
	b1 := NewEntry(TierCore, "likes tea", "belief")
	b2 := NewEntry(TierCore, "likes coffee", "belief")
	retraction := NewEntry(TierCore, "retracted", "belief:retracted:"+b2.ID)

	active := ActiveBeliefs([]Entry{b1, b2, retraction})
	if len(active) != 1 || active[0].ID != b1.ID {
		t.Fatalf("expected only b1 active, got %+v", active)
	}
}

func TestBuildRelationalMatrixFindsSharedTopics(t *testing.T) {
	a := NewEntry(TierEpisodic, "discussed rust borrow checker patterns", "user-chat")
	b := NewEntry(TierSemantic, "rust borrow checker is elegant", "sleep:promote")

	matrix := BuildRelationalMatrix([]Entry{a, b})
	if len(matrix) == 0 {
		t.Fatal("expected at least one relational link")
	}
	found := false
	for _, link := range matrix {
		for _, topic := range link.SharedTopics {
			if topic == "rust" || topic == "borrow" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected shared topic 'rust' or 'borrow', got %+v", matrix)
	}
}

func TestComposePromptOrdersSectionsPerSpec(t *testing.T) {
	identity := Identity{CommunicationStyle: "direct and warm"}
	belief := NewEntry(TierCore, "truth-seeking above all", "belief")
	belief.Confidence = 0.9

	components := PromptComponents{
		KVBlock:     "core_summary: ...",
		Identity:    identity,
		AllEntries:  []Entry{belief},
		RecentTurns: []ConversationTurn{{UserText: "hi", AssistantText: "hello", Timestamp: time.Now()}},
		UserMessage: "what's up?",
		Now:         time.Now().UTC(),
	}

	prompt := ComposePrompt(components)

	order := []string{"KV:", "IDENTITY:", "MY_BELIEFS:", "RECENT CONVERSATION:", "USER:"}
	lastIdx := -1
	for _, marker := range order {
		idx := strings.Index(prompt, marker)
		if idx == -1 {
			t.Fatalf("expected prompt to contain %q, got:\n%s", marker, prompt)
		}
		if idx < lastIdx {
			t.Fatalf("expected %q to appear after previous marker, got order violation in:\n%s", marker, prompt)
		}
		lastIdx = idx
	}
}

func TestComposePromptCapsBeliefsAtMax(t *testing.T) {
	var entries []Entry
	for i := 0; i < 8; i++ {
		e := NewEntry(TierCore, "belief content", "belief")
		e.Confidence = 0.9
		entries = append(entries, e)
	}

	prompt := ComposePrompt(PromptComponents{
		Identity:   Identity{CommunicationStyle: "terse"},
		AllEntries: entries,
		UserMessage: "hello",
	})

	count := strings.Count(prompt, "belief content")
	if count > defaultMaxBeliefsInPrompt {
		t.Fatalf("expected at most %d beliefs in prompt, got %d", defaultMaxBeliefsInPrompt, count)
	}
}
