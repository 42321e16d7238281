package binned

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// maxBackoffExponent clamps the exponential backoff growth.
const maxBackoffExponent = 16

// maxBackoffDelay is the ceiling on the computed backoff delay.
const maxBackoffDelay = 50 * time.Millisecond

// classState is the per-size-class mutable state: the intrusive LIFO free
// list, grow bookkeeping, and the blocks this class owns.
type classState struct {
	binSize uintptr

	lock         spinLock // guards freeListHead and blocks
	freeListHead uintptr  // 0 == empty
	freeBinCount atomic.Int64
	blocks       []*block

	exhausted    atomic.Bool
	backoffExp   atomic.Int32
	growDeadline atomic.Int64 // UnixNano

	blocksMu sync.Mutex
}

func newClassState(binSize uintptr) *classState {
	return &classState{binSize: binSize}
}

// popFree pops the top pointer off the intrusive free list, or returns nil
// if empty.
func (c *classState) popFree() unsafe.Pointer {
	c.lock.acquire()
	defer c.lock.release()

	if c.freeListHead == 0 {
		return nil
	}
	addr := c.freeListHead
	next := *(*uintptr)(unsafe.Pointer(addr))
	c.freeListHead = next
	c.freeBinCount.Add(-1)
	return unsafe.Pointer(addr)
}

// pushFree pushes p onto the intrusive free list, storing the previous head
// in p's first machine word.
func (c *classState) pushFree(p unsafe.Pointer) {
	c.lock.acquire()
	defer c.lock.release()

	addr := uintptr(p)
	*(*uintptr)(unsafe.Pointer(addr)) = c.freeListHead
	c.freeListHead = addr
	c.freeBinCount.Add(1)
}

// pushFreeMany pushes every pointer in ps onto the free list under a single
// lock acquisition, used to flush a magazine's overflow batch or a
// thread-exit drain in one step.
func (c *classState) pushFreeMany(ps []unsafe.Pointer) {
	if len(ps) == 0 {
		return
	}
	c.lock.acquire()
	defer c.lock.release()

	for _, p := range ps {
		addr := uintptr(p)
		*(*uintptr)(unsafe.Pointer(addr)) = c.freeListHead
		c.freeListHead = addr
	}
	c.freeBinCount.Add(int64(len(ps)))
}

// shouldAttemptGrow reports whether a grow attempt is currently permitted:
// either the class isn't in backoff, or its deadline has passed.
func (c *classState) shouldAttemptGrow(now time.Time) bool {
	if !c.exhausted.Load() {
		return true
	}
	return now.UnixNano() >= c.growDeadline.Load()
}

// recordGrowFailure sets exhausted, advances the exponent (clamped), and
// computes the new backoff deadline.
func (c *classState) recordGrowFailure(now time.Time) {
	c.exhausted.Store(true)
	exp := c.backoffExp.Add(1)
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
		c.backoffExp.Store(exp)
	}
	delay := time.Duration(1) * time.Millisecond * time.Duration(1<<uint(exp))
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	c.growDeadline.Store(now.Add(delay).UnixNano())
}

// recordGrowSuccess clears exhaustion and backoff state.
func (c *classState) recordGrowSuccess() {
	c.exhausted.Store(false)
	c.backoffExp.Store(0)
	c.growDeadline.Store(0)
}

func (c *classState) addBlock(b *block) {
	c.blocksMu.Lock()
	c.blocks = append(c.blocks, b)
	c.blocksMu.Unlock()
}

// findBlock does a linear scan of this class's owned blocks to find the one
// containing addr. Only used by optional debug/audit paths, never the hot
// allocate/free path, so the O(blocks) scan is acceptable: a class
// typically owns a handful of blocks over a process lifetime.
func (c *classState) findBlock(addr uintptr) *block {
	c.blocksMu.Lock()
	defer c.blocksMu.Unlock()
	for _, b := range c.blocks {
		if b.contains(addr) {
			return b
		}
	}
	return nil
}
