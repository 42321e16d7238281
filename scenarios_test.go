package memkit

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// S1: small round-trip, repeated, must not grow beyond one block for the class.
func TestScenarioSmallRoundTripStaysWithinOneBlock(t *testing.T) {
	e := NewEngine()
	classIndex, ok := e.binned.ClassForSize(24, 16)
	require.True(t, ok)

	// Prime one block by allocating and freeing once first.
	p := e.Allocate(24, 16)
	require.NotNil(t, p)
	e.Deallocate(p, 24)

	before := e.binned.FreeBinCount(classIndex)

	const iterations = 1000
	for i := 0; i < iterations; i++ {
		p := e.Allocate(24, 16)
		require.NotNil(t, p)
		require.Equal(t, uintptr(0), uintptr(p)%16)
		e.Deallocate(p, 24)
	}

	after := e.binned.FreeBinCount(classIndex)
	require.Equal(t, before, after)
}

// S2: alignment spill routes to the large tier and round-trips.
func TestScenarioAlignmentSpill(t *testing.T) {
	e := NewEngine()

	p := e.Allocate(64, 4096)
	require.NotNil(t, p)
	require.Equal(t, uintptr(0), uintptr(p)%4096)
	require.True(t, e.large.MaybeDeallocate(p))
}

// S3: large guard pages protect reads within bounds; out-of-bounds access
// is exercised only as a documented property, not executed here (it would
// crash the test process by design).
func TestScenarioLargeGuardedInteriorIsUsable(t *testing.T) {
	e := NewEngine(WithDebug(true))

	p := e.large.Allocate(8192, 16, true)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), 8192)
	b[0] = 1
	b[8191] = 2
	require.Equal(t, byte(1), b[0])
	require.Equal(t, byte(2), b[8191])

	e.large.Deallocate(p)
}

// S4: a goroutine that allocates then exits must flush its magazine so the
// same bin instances are reusable afterward, without new growth.
func TestScenarioGoroutineExitFlush(t *testing.T) {
	e := NewEngine()

	var freed []unsafe.Pointer
	e.Magazines().Run(func() {
		for i := 0; i < 10; i++ {
			p := e.Allocate(16, 16)
			require.NotNil(t, p)
			freed = append(freed, p)
		}
		for _, p := range freed {
			e.Deallocate(p, 16)
		}
	})

	seen := make(map[unsafe.Pointer]bool)
	for i := 0; i < 10; i++ {
		p := e.Allocate(16, 16)
		require.NotNil(t, p)
		seen[p] = true
	}
	for _, p := range freed {
		require.True(t, seen[p], "pointer freed by exited goroutine must be reused before new growth")
	}
}

// S6: quarantine FIFO — freeing more than capacity returns the oldest
// excess to the global free list while the rest stay quarantined.
func TestScenarioQuarantineFIFO(t *testing.T) {
	e := NewEngine(WithDebug(true))
	classIndex, ok := e.binned.ClassForSize(16, 16)
	require.True(t, ok)

	const total = 300
	ptrs := make([]unsafe.Pointer, total)
	for i := range ptrs {
		p := e.Allocate(16, 16)
		require.NotNil(t, p)
		ptrs[i] = p
	}
	afterAlloc := e.binned.FreeBinCount(classIndex)

	for _, p := range ptrs {
		e.Deallocate(p, 16)
	}
	e.FlushTLS()

	afterFree := e.binned.FreeBinCount(classIndex)
	require.Equal(t, int64(total-256), afterFree-afterAlloc,
		"only the evicted excess over quarantine capacity should reach the global free list")
}
