package session

import (
	"testing"
	"time"

	"github.com/aigent/aigent/internal/memory"
)

func TestAddAndRecent(t *testing.T) {
	s := NewStore(10)
	s.Add(memory.ConversationTurn{Source: "user", UserText: "hi", AssistantText: "hello"})
	s.Add(memory.ConversationTurn{Source: "user", UserText: "how are you", AssistantText: "good"})

	recent := s.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(recent))
	}
	if recent[0].UserText != "hi" || recent[1].UserText != "how are you" {
		t.Errorf("unexpected order: %+v", recent)
	}
}

func TestAddEvictsOldestAtCapacity(t *testing.T) {
	s := NewStore(2)
	s.Add(memory.ConversationTurn{UserText: "one"})
	s.Add(memory.ConversationTurn{UserText: "two"})
	s.Add(memory.ConversationTurn{UserText: "three"})

	recent := s.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", len(recent))
	}
	if recent[0].UserText != "two" || recent[1].UserText != "three" {
		t.Errorf("expected oldest evicted, got %+v", recent)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	s := NewStore(10)
	for _, text := range []string{"a", "b", "c"} {
		s.Add(memory.ConversationTurn{UserText: text})
	}

	recent := s.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(recent))
	}
	if recent[0].UserText != "b" || recent[1].UserText != "c" {
		t.Errorf("expected last 2 turns, got %+v", recent)
	}
}

func TestLastAtEmptyBufferReturnsZero(t *testing.T) {
	s := NewStore(5)
	if !s.LastAt().IsZero() {
		t.Error("expected zero time for empty buffer")
	}
}

func TestLastAtReturnsMostRecentTimestamp(t *testing.T) {
	s := NewStore(5)
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	s.Add(memory.ConversationTurn{UserText: "first", Timestamp: older})
	s.Add(memory.ConversationTurn{UserText: "second", Timestamp: newer})

	if !s.LastAt().Equal(newer) {
		t.Errorf("expected %v, got %v", newer, s.LastAt())
	}
}
