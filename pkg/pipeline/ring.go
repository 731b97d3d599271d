package pipeline

import "sync"

// DefaultDedupCapacity is the number of message IDs remembered.
const DefaultDedupCapacity = 1024

// Ring is a bounded set of recently processed message IDs with FIFO eviction.
type Ring struct {
	mu    sync.Mutex
	cap   int
	ids   []string
	head  int
	index map[string]struct{}
}

// NewRing creates a ring holding at most capacity IDs.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Ring{
		cap:   capacity,
		ids:   make([]string, 0, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id is in the window.
func (r *Ring) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

// Add records id, evicting the oldest entry when full. Adding a known ID is a no-op.
func (r *Ring) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(id)
}

func (r *Ring) add(id string) {
	if _, ok := r.index[id]; ok {
		return
	}
	if len(r.ids) < r.cap {
		r.ids = append(r.ids, id)
	} else {
		delete(r.index, r.ids[r.head])
		r.ids[r.head] = id
		r.head = (r.head + 1) % r.cap
	}
	r.index[id] = struct{}{}
}

// IDs returns the window oldest first.
func (r *Ring) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ids))
	out = append(out, r.ids[r.head:]...)
	out = append(out, r.ids[:r.head]...)
	return out
}

// Restore refills the ring from ids, oldest first. Only the newest Cap() survive.
func (r *Ring) Restore(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = r.ids[:0]
	r.head = 0
	r.index = make(map[string]struct{}, r.cap)
	for _, id := range ids {
		r.add(id)
	}
}

// Len returns the number of remembered IDs.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Cap returns the capacity.
func (r *Ring) Cap() int { return r.cap }
