package session

import (
	"sync"

	"github.com/aigent/aigent/internal/memory"
)

// Store is the single-user ring buffer of recent conversation turns (spec
// §4.10's `GetRecentContext`/`RecentContext` — "for UI restore on
// reconnect"). The teacher kept one Session per chat keyed by a session ID;
// Aigent has exactly one conversation, so the map collapses to one
// fixed-capacity buffer.
type Store struct {
	mu       sync.Mutex
	capacity int
	turns    []memory.ConversationTurn
}

// NewStore creates a ring buffer holding at most capacity turns (the
// oldest is evicted once full). capacity <= 0 defaults to 50.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 50
	}
	return &Store{capacity: capacity}
}
