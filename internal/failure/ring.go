package failure

import "sync"

// DefaultCapacity is the number of entries the log retains.
const DefaultCapacity = 50

// Ring is a fixed-capacity FIFO of log entries. Once full, each push evicts
// the oldest entry. It is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry
	head  int // index of the oldest entry
	count int
}

// NewRing returns a Ring holding at most capacity entries.
// Capacity <= 0 falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Push appends e, evicting the oldest entry when the ring is full.
// It reports whether an entry was evicted.
func (r *Ring) Push(e Entry) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = e
		r.count++
		return false
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// Snapshot returns a copy of the entries, oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset drops every entry.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.head, r.count = 0, 0
}
