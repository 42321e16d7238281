package allocdebug

import (
	"sync"
	"unsafe"
)

// Entry is one quarantined pointer, tagged with the bin size of the class
// it came from so a later eviction can route it back correctly without
// re-deriving the class from the pointer's address.
type Entry struct {
	Pointer unsafe.Pointer
	BinSize uintptr
}

// EvictFunc frees an evicted entry through the real allocator. Quarantine
// calls this with its own lock released, never held, to avoid an ordering
// cycle with the owning class's grow lock.
type EvictFunc func(Entry)

// Quarantine is a bounded FIFO of recently-freed pointers whose reuse is
// deliberately delayed to expose use-after-free. Capacity is fixed at
// QuarantineCapacity.
type Quarantine struct {
	mu      sync.Mutex
	entries []Entry
	evict   EvictFunc
}

// NewQuarantine constructs an empty quarantine that calls evict for every
// entry it pushes out once it grows past QuarantineCapacity.
func NewQuarantine(evict EvictFunc) *Quarantine {
	return &Quarantine{evict: evict}
}

// Push appends e to the quarantine. If this pushes the queue over
// QuarantineCapacity, the oldest entry is popped and freed via evict with
// the quarantine's lock already released. Push always returns true: the
// caller must treat the pointer as consumed by quarantine and skip its own
// normal free path.
func (q *Quarantine) Push(e Entry) bool {
	var evicted Entry
	haveEviction := false

	q.mu.Lock()
	q.entries = append(q.entries, e)
	if len(q.entries) > QuarantineCapacity {
		evicted = q.entries[0]
		q.entries = q.entries[1:]
		haveEviction = true
	}
	q.mu.Unlock()

	if haveEviction && q.evict != nil {
		q.evict(evicted)
	}
	return true
}

// Len returns the current quarantine depth.
func (q *Quarantine) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
