package binned

// maxSmallSize is the largest byte count routed to the binned tier; larger
// requests, and zero, are rejected as "not small".
const maxSmallSize = 4096

// sizeClassBoundaries lists every fixed bin size, in the three stepped
// ranges the design fixes: 16..256 step 16, 288..512 step 32, 576..4096
// step 64.
func sizeClassBoundaries() []uintptr {
	var out []uintptr
	for s := uintptr(16); s <= 256; s += 16 {
		out = append(out, s)
	}
	for s := uintptr(288); s <= 512; s += 32 {
		out = append(out, s)
	}
	for s := uintptr(576); s <= 4096; s += 64 {
		out = append(out, s)
	}
	return out
}

// naturalAlignment returns the greatest power of two dividing n.
func naturalAlignment(n uintptr) uintptr {
	if n == 0 {
		return 1
	}
	align := uintptr(1)
	for n%(align*2) == 0 {
		align *= 2
	}
	return align
}

// classTable holds the fixed size-class metadata and the byte→class lookup
// table built once at construction.
type classTable struct {
	binSizes  []uintptr
	alignment []uintptr
	lookup    [maxSmallSize + 1]int16 // -1 means "not small"
	reverse   map[uintptr]int
}

func newClassTable() *classTable {
	boundaries := sizeClassBoundaries()
	t := &classTable{
		binSizes:  boundaries,
		alignment: make([]uintptr, len(boundaries)),
		reverse:   make(map[uintptr]int, len(boundaries)),
	}
	for i, sz := range boundaries {
		t.alignment[i] = naturalAlignment(sz)
		t.reverse[sz] = i
	}

	for b := 0; b <= maxSmallSize; b++ {
		t.lookup[b] = -1
	}
	for i, sz := range boundaries {
		lo := uintptr(0)
		if i > 0 {
			lo = boundaries[i-1] + 1
		}
		for b := lo; b <= sz; b++ {
			t.lookup[b] = int16(i)
		}
	}
	return t
}

// classFor returns the class index for size, or (-1, false) if size is
// zero, exceeds maxSmallSize, or cannot satisfy align within that class's
// natural alignment (in which case the caller must route to the large
// tier).
func (t *classTable) classFor(size, align uintptr) (int, bool) {
	if size == 0 || size > maxSmallSize {
		return -1, false
	}
	idx := t.lookup[size]
	if idx < 0 {
		return -1, false
	}
	if align > t.alignment[idx] {
		return -1, false
	}
	return int(idx), true
}

func (t *classTable) numClasses() int { return len(t.binSizes) }

func (t *classTable) binSize(classIndex int) uintptr { return t.binSizes[classIndex] }

// classIndexForBinSize recovers a class index from a previously recorded
// bin size, used by quarantine re-entry to route an evicted pointer back
// without re-deriving it from the pointer's address.
func (t *classTable) classIndexForBinSize(binSize uintptr) (int, bool) {
	idx, ok := t.reverse[binSize]
	return idx, ok
}
