package session

import (
	"time"

	"github.com/aigent/aigent/internal/memory"
)

// Add records one completed turn, evicting the oldest if the buffer is at
// capacity.
func (s *Store) Add(turn memory.ConversationTurn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	if overflow := len(s.turns) - s.capacity; overflow > 0 {
		s.turns = s.turns[overflow:]
	}
}

// Recent returns up to limit of the most recent turns, oldest first. limit
// <= 0 returns the full buffer.
func (s *Store) Recent(limit int) []memory.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.turns) {
		limit = len(s.turns)
	}
	start := len(s.turns) - limit
	out := make([]memory.ConversationTurn, limit)
	copy(out, s.turns[start:])
	return out
}

// LastAt returns the timestamp of the most recent turn, or the zero time
// if the buffer is empty. Wired as the scheduler's LastConversationAt hook
// (spec §4.8's "no conversation in the last 15 minutes" nightly gate).
func (s *Store) LastAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 {
		return time.Time{}
	}
	return s.turns[len(s.turns)-1].Timestamp
}
