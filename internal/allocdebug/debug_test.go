package allocdebug

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestPoisonFillsFreeFill(t *testing.T) {
	buf := make([]byte, 16)
	Poison(unsafe.Pointer(&buf[0]), 16)
	for _, b := range buf {
		require.Equal(t, byte(FreeFill), b)
	}
}

func TestLooksUseAfterFree(t *testing.T) {
	buf := []byte{UseAfterFreeSentinel, 0, 0}
	require.True(t, LooksUseAfterFree(unsafe.Pointer(&buf[0])))
	buf[0] = 0x01
	require.False(t, LooksUseAfterFree(unsafe.Pointer(&buf[0])))
}

func TestCountersAddAndRead(t *testing.T) {
	var c Counters
	c.AddAlloc()
	c.AddAlloc()
	c.AddFree()
	require.Equal(t, uint64(2), c.Allocs())
	require.Equal(t, uint64(1), c.Frees())
	require.Equal(t, uint64(0), c.Commits())
}

func TestLiveSetDetectsDoubleFree(t *testing.T) {
	s := NewLiveSet()
	var x byte
	p := unsafe.Pointer(&x)

	s.MarkAllocated(p)
	s.CheckDoubleFree(p)

	require.Panics(t, func() { s.CheckDoubleFree(p) })
}

func TestLeakTrackerRoundTrip(t *testing.T) {
	lt := NewLeakTracker()
	var x [8]byte
	p := unsafe.Pointer(&x[0])

	lt.TagAlloc(p, 8, 0)
	leaks := lt.DumpLeaks()
	require.Len(t, leaks, 1)
	require.Equal(t, uintptr(8), leaks[0].Size)

	lt.TagFree(p)
	require.Empty(t, lt.DumpLeaks())
}

func TestFormatLeaksEmpty(t *testing.T) {
	require.Equal(t, "no memory leaks detected", FormatLeaks(nil))
}

func TestQuarantineEvictsFIFO(t *testing.T) {
	var evicted []Entry
	q := NewQuarantine(func(e Entry) { evicted = append(evicted, e) })

	for i := 0; i < QuarantineCapacity+44; i++ {
		q.Push(Entry{Pointer: unsafe.Pointer(uintptr(i + 1)), BinSize: 16})
	}

	require.Len(t, evicted, 44)
	require.Equal(t, unsafe.Pointer(uintptr(1)), evicted[0].Pointer)
	require.Equal(t, QuarantineCapacity, q.Len())
}
