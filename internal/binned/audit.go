package binned

import (
	"fmt"
	"unsafe"

	"github.com/bits-and-blooms/bitset"
)

func ptrOf(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }

// AuditClass is an off-hot-path consistency check enabled only when
// Config.EnableOccupancyBitmap is set: it walks a class's global free list
// under the grow lock, marks every visited bin in a fresh occupancy
// bitmap keyed by bin index within each owned block, and cross-checks the
// walk's length against the class's atomic free-bin counter. It never runs
// implicitly; callers invoke it from their own diagnostic tooling.
func (a *Allocator) AuditClass(classIndex int) error {
	if !a.cfg.EnableOccupancyBitmap {
		return nil
	}
	if classIndex < 0 || classIndex >= len(a.states) {
		return fmt.Errorf("binned: class index %d out of range", classIndex)
	}
	state := a.states[classIndex]

	state.blocksMu.Lock()
	blocks := append([]*block(nil), state.blocks...)
	state.blocksMu.Unlock()

	bitmaps := make(map[*block]*bitset.BitSet, len(blocks))
	for _, b := range blocks {
		bitmaps[b] = bitset.New(uint(b.binCount))
	}

	state.lock.acquire()
	var corrupt error
	walked := uint64(0)
	cur := state.freeListHead
	for cur != 0 {
		var owner *bitset.BitSet
		var idx uint
		for _, b := range blocks {
			if b.contains(cur) {
				owner = bitmaps[b]
				idx = uint((cur - b.base) / b.binSize)
				break
			}
		}
		if owner == nil {
			corrupt = fmt.Errorf("binned: class %d free list points outside any owned block", classIndex)
			break
		}
		if owner.Test(idx) {
			corrupt = fmt.Errorf("binned: class %d free list visits bin %d twice (cycle or corruption)",
				classIndex, idx)
			break
		}
		owner.Set(idx)
		next := *(*uintptr)(ptrOf(cur))
		cur = next
		walked++
	}
	state.lock.release()

	if corrupt != nil {
		return corrupt
	}

	var occupied uint64
	for _, bm := range bitmaps {
		occupied += uint64(bm.Count())
	}
	if occupied != walked {
		return fmt.Errorf("binned: class %d occupancy bitmap mismatch: set bits %d, walked %d",
			classIndex, occupied, walked)
	}
	if walked != uint64(state.freeBinCount.Load()) {
		return fmt.Errorf("binned: class %d free-bin count mismatch: walked %d, counter %d",
			classIndex, walked, state.freeBinCount.Load())
	}
	return nil
}
