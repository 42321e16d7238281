// Package binned implements memkit's small-object allocator: fixed size
// classes, per-class intrusive free lists, thread-local magazines, and
// backoff-gated growth.
package binned

import (
	"time"
	"unsafe"

	"github.com/sony/gobreaker"

	"github.com/vornengine/memkit/internal/allocdebug"
	"github.com/vornengine/memkit/internal/large"
	"github.com/vornengine/memkit/internal/tlsmag"
)

// PressureHandler is invoked whenever a class's grow attempt fails. It
// receives the class's bin size and the new backoff delay.
type PressureHandler func(binSize uintptr, delay time.Duration)

// Config configures one Allocator instance.
type Config struct {
	MagazineCapacity      int
	Debug                 bool
	GuardPagesOnLarge     bool
	PressureHandler       PressureHandler
	Breaker               *gobreaker.CircuitBreaker
	EnableOccupancyBitmap bool
}

// Allocator is the process-wide (or test-local) small-object allocator. It
// owns one classState per fixed size class, a magazine registry for the
// thread-local fast path, and a large-tier allocator used both for
// alignment-overflow routing and for probing foreign frees.
type Allocator struct {
	classes *classTable
	states  []*classState
	mags    *tlsmag.Registry
	large   *large.Allocator

	cfg Config

	counters   allocdebug.Counters
	liveSet    *allocdebug.LiveSet
	leaks      *allocdebug.LeakTracker
	quarantine *allocdebug.Quarantine
}

// New constructs a small-object allocator ready for use.
func New(cfg Config) *Allocator {
	if cfg.MagazineCapacity <= 0 {
		cfg.MagazineCapacity = tlsmag.DefaultCapacity
	}

	classes := newClassTable()
	a := &Allocator{
		classes: classes,
		states:  make([]*classState, classes.numClasses()),
		large:   large.New(cfg.GuardPagesOnLarge),
		cfg:     cfg,
	}
	for i := 0; i < classes.numClasses(); i++ {
		a.states[i] = newClassState(classes.binSize(i))
	}
	a.mags = tlsmag.NewRegistry(classes.numClasses(), cfg.MagazineCapacity, a)

	if cfg.Debug {
		a.liveSet = allocdebug.NewLiveSet()
		a.leaks = allocdebug.NewLeakTracker()
		a.quarantine = allocdebug.NewQuarantine(a.freeFromQuarantine)
	}
	return a
}

// Magazines exposes the registry so callers can run worker goroutines
// through it (Registry.Run) and get deterministic thread-exit flushing.
func (a *Allocator) Magazines() *tlsmag.Registry { return a.mags }

// Large exposes the large-tier allocator so the public surface can route
// alignment-overflow and oversize requests to it directly.
func (a *Allocator) Large() *large.Allocator { return a.large }

// Allocate runs the binned allocation hot path: class lookup, alignment
// check, TLS pop, global free-list pop, backoff-gated grow. Returns nil
// immediately (no spin, no retry) whenever none of those succeed, leaving
// the decision to retry with the caller.
func (a *Allocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	classIndex, ok := a.classes.classFor(size, alignment)
	if !ok {
		return nil
	}
	state := a.states[classIndex]

	if p := a.mags.Current().Pop(classIndex); p != nil {
		a.onAllocated(p, classIndex)
		return p
	}

	if p := state.popFree(); p != nil {
		a.onAllocated(p, classIndex)
		return p
	}

	if !a.canAttemptGrow(state, time.Now()) {
		return nil
	}
	if !a.grow(classIndex) {
		return nil
	}
	if p := state.popFree(); p != nil {
		a.onAllocated(p, classIndex)
		return p
	}
	return nil
}

func (a *Allocator) onAllocated(p unsafe.Pointer, classIndex int) {
	if a.cfg.Debug {
		a.liveSet.MarkAllocated(p)
		a.leaks.TagAlloc(p, a.classes.binSize(classIndex), 1)
	}
	a.counters.AddAlloc()
}

// AllocateLarge routes size bytes through the large tier and records the
// result in the same live set, leak tracker and counters the binned path
// uses, so debug-layer bookkeeping stays allocator-wide rather than
// covering only small-object requests.
func (a *Allocator) AllocateLarge(size, alignment uintptr, guards bool) unsafe.Pointer {
	p := a.large.Allocate(size, alignment, guards)
	if p == nil {
		return nil
	}
	if a.cfg.Debug {
		a.liveSet.MarkAllocated(p)
		a.leaks.TagAlloc(p, size, 1)
	}
	a.counters.AddAlloc()
	return p
}

// Deallocate runs the binned deallocation hot path. size must be the
// original request size passed to Allocate so the correct class can be
// recomputed; callers that can't guarantee this must route through the
// large tier instead (Allocate never places such requests here in the
// first place).
func (a *Allocator) Deallocate(p unsafe.Pointer, size uintptr) {
	if p == nil {
		return
	}

	if a.cfg.Debug {
		a.liveSet.CheckDoubleFree(p)
	}

	if a.large.MaybeDeallocate(p) {
		if a.cfg.Debug {
			a.leaks.TagFree(p)
		}
		a.counters.AddFree()
		return
	}

	classIndex, ok := a.classes.classFor(size, 1)
	if !ok {
		return
	}
	state := a.states[classIndex]

	if a.cfg.Debug {
		allocdebug.Poison(p, state.binSize)
		if a.quarantine.Push(allocdebug.Entry{Pointer: p, BinSize: state.binSize}) {
			a.leaks.TagFree(p)
			a.counters.AddFree()
			return
		}
	}

	overflow := a.mags.Current().Push(classIndex, p)
	if len(overflow) > 0 {
		state.pushFreeMany(overflow)
	}

	if a.cfg.Debug {
		a.leaks.TagFree(p)
	}
	a.counters.AddFree()
}

// freeFromQuarantine is the quarantine eviction callback: it routes an
// evicted entry directly to its class's global free list, bypassing
// Deallocate entirely to avoid recursing back through the debug layer.
func (a *Allocator) freeFromQuarantine(e allocdebug.Entry) {
	classIndex, ok := a.classes.classIndexForBinSize(e.BinSize)
	if !ok {
		return
	}
	if a.cfg.Debug {
		allocdebug.Poison(e.Pointer, e.BinSize)
	}
	a.states[classIndex].pushFree(e.Pointer)
}

// PushFree implements tlsmag.Flusher: it is the cross-goroutine entry point
// magazines use to flush overflow and exit-time batches.
func (a *Allocator) PushFree(classIndex int, pointers []unsafe.Pointer) {
	if classIndex < 0 || classIndex >= len(a.states) {
		return
	}
	a.states[classIndex].pushFreeMany(pointers)
}

// FlushTLS drains the calling goroutine's magazine to the global free
// lists. Intended to be called at frame boundaries by callers that don't
// route every worker goroutine through Magazines().Run.
func (a *Allocator) FlushTLS() {
	a.mags.Flush()
}

// grow attempts to grow classIndex's block pool by one block. Returns true
// if, after the call, the class either just grew or another thread already
// grew it (grow-lock loser case) — both are treated as "try popping the
// free list again".
func (a *Allocator) grow(classIndex int) bool {
	state := a.states[classIndex]

	if !state.lock.tryAcquire() {
		return true
	}
	defer state.lock.release()

	b, addrs, err := newBlock(state.binSize)
	now := time.Now()
	if err != nil {
		state.recordGrowFailure(now)
		if a.cfg.PressureHandler != nil {
			delay := time.Duration(time.Until(time.Unix(0, state.growDeadline.Load())))
			a.cfg.PressureHandler(state.binSize, delay)
		}
		a.notifyBreaker(err)
		return false
	}

	for _, addr := range addrs {
		if a.cfg.Debug {
			allocdebug.Poison(unsafe.Pointer(addr), state.binSize)
		}
		*(*uintptr)(unsafe.Pointer(addr)) = state.freeListHead
		state.freeListHead = addr
	}
	state.freeBinCount.Add(int64(len(addrs)))
	state.addBlock(b)
	state.recordGrowSuccess()
	a.notifyBreaker(nil)
	return true
}

// canAttemptGrow reports whether classIndex's class is allowed to attempt a
// grow right now: the per-class backoff deadline must have passed, and, if a
// circuit breaker is configured, it must not be open.
func (a *Allocator) canAttemptGrow(state *classState, now time.Time) bool {
	if !state.shouldAttemptGrow(now) {
		return false
	}
	if a.cfg.Breaker != nil && a.cfg.Breaker.State() == gobreaker.StateOpen {
		return false
	}
	return true
}

func (a *Allocator) notifyBreaker(err error) {
	if a.cfg.Breaker == nil {
		return
	}
	_, _ = a.cfg.Breaker.Execute(func() (any, error) {
		return nil, err
	})
}

// FreeBinCount returns the number of bins currently on classIndex's global
// free list, for tests and diagnostics; it does not include pointers
// cached in any thread-local magazine.
func (a *Allocator) FreeBinCount(classIndex int) int64 {
	return a.states[classIndex].freeBinCount.Load()
}

// ClassForSize exposes the class lookup for callers (notably the root
// package) that must decide before calling Allocate whether a request
// belongs to this tier at all.
func (a *Allocator) ClassForSize(size, alignment uintptr) (int, bool) {
	return a.classes.classFor(size, alignment)
}

// NumClasses returns the fixed number of size classes.
func (a *Allocator) NumClasses() int { return a.classes.numClasses() }
