package dispatch

import (
	"sync"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Ring is the bounded recent-events view served to the dashboard. Oldest
// entries are overwritten once capacity is reached.
type Ring struct {
	mu    sync.RWMutex
	items []domain.Event
	next  int
	full  bool
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{items: make([]domain.Event, capacity)}
}

func (r *Ring) Add(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = event
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, newest first.
func (r *Ring) Recent(limit int) []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.items)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]domain.Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

// Len returns the number of stored events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}
