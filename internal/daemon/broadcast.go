package daemon

import "sync"

// broadcastCapacity bounds each subscriber's event channel (spec §5:
// "the token broadcast channel has bounded capacity; slow subscribers drop
// oldest events and are signaled a Lagged marker").
const broadcastCapacity = 256

// hub fans Event values out to every Subscribe connection. It is
// lock-free from the publisher's perspective in the steady state: Publish
// only takes the mutex to snapshot the current subscriber list, never
// while sending.
type hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

// subscribe registers a new listener and returns its channel plus an
// unsubscribe function.
func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan Event, broadcastCapacity)
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// publish fans ev out to every current subscriber without blocking. For a
// subscriber whose channel is full, the oldest queued event is dropped to
// make room for a Lagged marker, and ev itself is dropped for that
// subscriber only — other subscribers are unaffected.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	chans := make([]chan Event, 0, len(h.subs))
	for _, ch := range h.subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- Event{Kind: EventLagged}:
			default:
			}
		}
	}
}
