// Package allocdebug implements memkit's debug layer: canary poisoning,
// quarantine, double-free detection and leak tagging. Every feature here is
// a cheap no-op when Enabled is false; callers on the hot path should check
// Enabled once rather than branch per-field.
package allocdebug

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// FreeFill is written across a bin's body on free and on fresh carving.
const FreeFill = 0xFE

// UseAfterFreeSentinel is the first-byte value checked on allocation; a
// mismatch is the expected, common case (the bin was freshly carved or the
// caller already overwrote it).
const UseAfterFreeSentinel = 0xDD

// QuarantineCapacity is the bounded FIFO depth for delayed-reuse tracking.
const QuarantineCapacity = 256

// Poison fills length bytes at p with FreeFill.
func Poison(p unsafe.Pointer, length uintptr) {
	if p == nil || length == 0 {
		return
	}
	b := unsafe.Slice((*byte)(p), int(length))
	for i := range b {
		b[i] = FreeFill
	}
}

// LooksUseAfterFree reports whether p's first byte still carries the
// use-after-free sentinel, which would indicate the caller is touching
// memory through a pointer it already freed without the allocator's
// knowledge.
func LooksUseAfterFree(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	return *(*byte)(p) == UseAfterFreeSentinel
}

// Counters holds atomic lifetime totals for the four tracked operations.
type Counters struct {
	allocs    uint64
	frees     uint64
	commits   uint64
	decommits uint64
}

func (c *Counters) AddAlloc()    { atomic.AddUint64(&c.allocs, 1) }
func (c *Counters) AddFree()     { atomic.AddUint64(&c.frees, 1) }
func (c *Counters) AddCommit()   { atomic.AddUint64(&c.commits, 1) }
func (c *Counters) AddDecommit() { atomic.AddUint64(&c.decommits, 1) }

func (c *Counters) Allocs() uint64    { return atomic.LoadUint64(&c.allocs) }
func (c *Counters) Frees() uint64     { return atomic.LoadUint64(&c.frees) }
func (c *Counters) Commits() uint64   { return atomic.LoadUint64(&c.commits) }
func (c *Counters) Decommits() uint64 { return atomic.LoadUint64(&c.decommits) }

// LiveSet detects double-frees: a set of addresses currently considered
// allocated.
type LiveSet struct {
	mu   sync.Mutex
	live map[uintptr]struct{}
}

// NewLiveSet constructs an empty live-pointer set.
func NewLiveSet() *LiveSet {
	return &LiveSet{live: make(map[uintptr]struct{})}
}

// MarkAllocated records p as freshly allocated, so that exactly one later
// CheckDoubleFree of p succeeds.
func (s *LiveSet) MarkAllocated(p unsafe.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[uintptr(p)] = struct{}{}
}

// CheckDoubleFree asserts (panics) if p is not currently marked allocated,
// then removes it. Call this before any other free-path bookkeeping.
func (s *LiveSet) CheckDoubleFree(p unsafe.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := uintptr(p)
	if _, ok := s.live[addr]; !ok {
		panic(fmt.Sprintf("allocdebug: double free of %p", p))
	}
	delete(s.live, addr)
}

// LeakRecord describes one still-live allocation at the time of a leak
// dump.
type LeakRecord struct {
	Pointer unsafe.Pointer
	Size    uintptr
	Origin  string
	Stack   []uintptr
}

// LeakTracker maps a live pointer to its size and call-site origin.
type LeakTracker struct {
	mu      sync.Mutex
	records map[uintptr]LeakRecord
}

// NewLeakTracker constructs an empty leak tracker.
func NewLeakTracker() *LeakTracker {
	return &LeakTracker{records: make(map[uintptr]LeakRecord)}
}

// TagAlloc records p as live, sized size, originating from the call site
// skip frames above the caller of TagAlloc.
func (t *LeakTracker) TagAlloc(p unsafe.Pointer, size uintptr, skip int) {
	var pcs [16]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	origin := ""
	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		if frame, _ := frames.Next(); frame.Function != "" {
			origin = fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[uintptr(p)] = LeakRecord{
		Pointer: p,
		Size:    size,
		Origin:  origin,
		Stack:   append([]uintptr(nil), pcs[:n]...),
	}
}

// TagFree removes p from the tracker.
func (t *LeakTracker) TagFree(p unsafe.Pointer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, uintptr(p))
}

// DumpLeaks enumerates every still-live record, intended for a
// process-shutdown hook.
func (t *LeakTracker) DumpLeaks() []LeakRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LeakRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	return out
}

// FormatLeaks renders leak records for human consumption, in the style of a
// shutdown diagnostic dump.
func FormatLeaks(leaks []LeakRecord) string {
	if len(leaks) == 0 {
		return "no memory leaks detected"
	}
	out := fmt.Sprintf("detected %d memory leaks:\n", len(leaks))
	for i, leak := range leaks {
		out += fmt.Sprintf("  leak %d: %d bytes at %p (%s)\n", i+1, leak.Size, leak.Pointer, leak.Origin)
	}
	return out
}
