package binned

import "github.com/vornengine/memkit/internal/vm"

// minBlockSize is the growth floor: a block is never smaller than 256 KiB
// regardless of bin size.
const minBlockSize = 256 * 1024

// minBinsPerBlock ties block size to bin size so small classes still carve
// a reasonable number of bins per grow.
const minBinsPerBlock = 64

// block is a contiguous, fully committed VM region partitioned into
// equal-size bins, owned by exactly one size class for the allocator's
// entire lifetime. Blocks are never freed.
type block struct {
	region   vm.Region
	base     uintptr
	size     uintptr
	binSize  uintptr
	binCount int
}

func growSizeFor(binSize uintptr) uintptr {
	sz := binSize * minBinsPerBlock
	if sz < minBlockSize {
		sz = minBlockSize
	}
	return sz
}

// newBlock reserves and commits a fresh region sized for binSize, carves it
// into equal bins, and returns it along with the list of bin addresses in
// ascending order so the caller can poison and push them onto the free
// list.
func newBlock(binSize uintptr) (*block, []uintptr, error) {
	size := growSizeFor(binSize)
	r, err := vm.Reserve(size)
	if err != nil {
		return nil, nil, err
	}
	if err := vm.Commit(r, 0, r.Size()); err != nil {
		vm.Release(r)
		return nil, nil, err
	}

	binCount := int(r.Size() / binSize)
	b := &block{
		region:   r,
		base:     r.Base(),
		size:     r.Size(),
		binSize:  binSize,
		binCount: binCount,
	}

	addrs := make([]uintptr, binCount)
	for i := 0; i < binCount; i++ {
		addrs[i] = b.base + uintptr(i)*binSize
	}
	return b, addrs, nil
}

// contains reports whether addr lies within b's address range.
func (b *block) contains(addr uintptr) bool {
	return addr >= b.base && addr < b.base+b.size
}
