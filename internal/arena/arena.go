// Package arena implements memkit's monotonic, bump-pointer allocator and
// the frame-arena pattern built on top of it.
package arena

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/vornengine/memkit/internal/vm"
)

// Arena is a bump-pointer allocator over a single reserved VM region. Pages
// are committed lazily as the bump pointer advances past the previously
// committed high-water mark; no page is ever decommitted except on Release
// or Reset-with-decommit.
type Arena struct {
	mu sync.Mutex

	region    vm.Region
	cur       uintptr // next free offset within region
	committed uintptr // bytes committed so far, always >= cur rounded up
	peak      uintptr
	allocs    uint64
	allocated uintptr
}

// State is a saved bump-pointer checkpoint, usable to unwind allocations
// made after the checkpoint was taken.
type State struct {
	cur    uintptr
	allocs uint64
}

// New reserves a region of the given capacity and returns an Arena bumping
// into it. No pages are committed until the first allocation.
func New(capacity uintptr) (*Arena, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("arena: capacity must be > 0")
	}
	r, err := vm.Reserve(capacity)
	if err != nil {
		return nil, fmt.Errorf("arena: %w", err)
	}
	return &Arena{region: r}, nil
}

// Release returns the arena's backing region to the operating system. The
// arena must not be used afterward.
func (a *Arena) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return vm.Release(a.region)
}

func alignUp(n, align uintptr) uintptr {
	if align == 0 {
		align = 1
	}
	return (n + align - 1) &^ (align - 1)
}

// Alloc bumps the arena pointer by size, aligned to align (which must be a
// power of two; 0 means natural/1-byte alignment), committing additional
// pages on demand. Returns nil if the arena's reserved capacity is
// exhausted.
func (a *Arena) Alloc(size, align uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	if align == 0 {
		align = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := alignUp(a.cur, align)
	end := start + size
	if end > a.region.Size() {
		return nil
	}

	if end > a.committed {
		newCommitted := alignUp(end, vm.PageSize())
		if newCommitted > a.region.Size() {
			newCommitted = a.region.Size()
		}
		if err := vm.Commit(a.region, a.committed, newCommitted-a.committed); err != nil {
			return nil
		}
		a.committed = newCommitted
	}

	addr, err := a.region.Sub(start, size)
	if err != nil {
		return nil
	}

	a.cur = end
	a.allocs++
	a.allocated += size
	if a.cur > a.peak {
		a.peak = a.cur
	}

	return unsafe.Pointer(addr)
}

// Reset rewinds the bump pointer to zero, making the entire arena available
// for reuse. Committed pages are kept committed (not decommitted) so that a
// reset-and-reuse cycle, the common per-frame pattern, avoids repeated
// commit/decommit syscalls.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cur = 0
	a.allocs = 0
	a.allocated = 0
}

// ResetAndDecommit rewinds the bump pointer and also decommits every page
// backing the arena, returning physical memory to the OS while keeping the
// address space reserved.
func (a *Arena) ResetAndDecommit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.committed > 0 {
		if err := vm.Decommit(a.region, 0, a.committed); err != nil {
			return err
		}
	}
	a.cur = 0
	a.committed = 0
	a.allocs = 0
	a.allocated = 0
	return nil
}

// Used returns the number of bytes currently bumped past.
func (a *Arena) Used() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

// Capacity returns the arena's total reserved size.
func (a *Arena) Capacity() uintptr {
	return a.region.Size()
}

// PeakUsage returns the high-water mark of Used() since creation. Reset and
// ResetAndDecommit do not clear it.
func (a *Arena) PeakUsage() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}

// Allocations returns the count of Alloc calls that returned non-nil since
// creation or the last Reset.
func (a *Arena) Allocations() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs
}

// CanAlloc reports whether an allocation of size bytes aligned to align
// would currently succeed without growing beyond the reserved capacity.
func (a *Arena) CanAlloc(size, align uintptr) bool {
	if align == 0 {
		align = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	start := alignUp(a.cur, align)
	return start+size <= a.region.Size()
}

// Save captures the current bump-pointer position so it can later be
// restored with Restore, discarding every allocation made in between. This
// is the primitive FrameArena's EndFrame builds on.
func (a *Arena) Save() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{cur: a.cur, allocs: a.allocs}
}

// Restore rewinds the arena to a previously Saved state. Restoring to a
// state from a different arena, or after a Reset, is undefined and ignored
// if the saved offset no longer fits.
func (a *Arena) Restore(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s.cur > a.cur {
		return
	}
	a.cur = s.cur
	a.allocs = s.allocs
}
