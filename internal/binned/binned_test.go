package binned

import (
	"errors"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestClassForSizeRoundsUpToBin(t *testing.T) {
	ct := newClassTable()

	idx, ok := ct.classFor(24, 16)
	require.True(t, ok)
	require.Equal(t, uintptr(32), ct.binSize(idx))
}

func TestClassForRejectsOversizeAndZero(t *testing.T) {
	ct := newClassTable()
	_, ok := ct.classFor(0, 1)
	require.False(t, ok)
	_, ok = ct.classFor(4097, 1)
	require.False(t, ok)
}

func TestClassForRoutesOveralignedToLarge(t *testing.T) {
	ct := newClassTable()
	_, ok := ct.classFor(64, 4096)
	require.False(t, ok)
}

func TestNaturalAlignmentOf576(t *testing.T) {
	require.Equal(t, uintptr(64), naturalAlignment(576))
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	a := New(Config{})
	p := a.Allocate(24, 16)
	require.NotNil(t, p)
	require.Equal(t, uintptr(0), uintptr(p)%16)

	a.Deallocate(p, 24)
	p2 := a.Allocate(24, 16)
	require.Equal(t, p, p2, "freed bin should be reused by next allocation")
	a.Deallocate(p2, 24)
}

func TestAllocateManyThenFreeAllRestoresFreeCount(t *testing.T) {
	a := New(Config{})
	classIndex, ok := a.ClassForSize(32, 16)
	require.True(t, ok)

	// Grow the class once so the baseline already includes the block the
	// allocations below are carved from.
	first := a.Allocate(32, 16)
	require.NotNil(t, first)
	a.Deallocate(first, 32)
	a.FlushTLS()

	before := a.FreeBinCount(classIndex)
	const n = 200
	ptrs := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		p := a.Allocate(32, 16)
		require.NotNil(t, p)
		ptrs[i] = p
	}
	for i := n - 1; i >= 0; i-- {
		a.Deallocate(ptrs[i], 32)
	}
	a.FlushTLS()

	after := a.FreeBinCount(classIndex)
	require.Equal(t, before, after)
}

func TestAlignmentOverflowRoutesToLargeViaAllocator(t *testing.T) {
	a := New(Config{})
	p := a.large.Allocate(64, 4096, false)
	require.NotNil(t, p)
	require.True(t, a.large.MaybeDeallocate(p))
}

func TestGrowOnExhaustion(t *testing.T) {
	a := New(Config{})
	classIndex, ok := a.ClassForSize(16, 16)
	require.True(t, ok)

	require.True(t, a.grow(classIndex))
	require.Greater(t, a.FreeBinCount(classIndex), int64(0))
}

func TestConcurrentAllocateFree(t *testing.T) {
	a := New(Config{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p := a.Allocate(48, 16)
				if p != nil {
					a.Deallocate(p, 48)
				}
			}
		}()
	}
	wg.Wait()
}

func TestBackoffMonotonicity(t *testing.T) {
	state := newClassState(16)
	now := time.Now()

	require.True(t, state.shouldAttemptGrow(now))

	state.recordGrowFailure(now)
	require.True(t, state.exhausted.Load())
	require.False(t, state.shouldAttemptGrow(now))
	require.True(t, state.shouldAttemptGrow(now.Add(2*time.Second)))

	state.recordGrowSuccess()
	require.False(t, state.exhausted.Load())
	require.True(t, state.shouldAttemptGrow(now))
}

func TestBackoffExponentClampsAtSixteen(t *testing.T) {
	state := newClassState(16)
	now := time.Now()
	for i := 0; i < 20; i++ {
		state.recordGrowFailure(now)
	}
	require.LessOrEqual(t, state.backoffExp.Load(), int32(maxBackoffExponent))
}

func TestCircuitBreakerGatesGrowWhenOpen(t *testing.T) {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	_, _ = breaker.Execute(func() (any, error) {
		return nil, errors.New("forced open")
	})
	require.Equal(t, gobreaker.StateOpen, breaker.State())

	a := New(Config{Breaker: breaker})
	classIndex, ok := a.ClassForSize(16, 16)
	require.True(t, ok)

	p := a.Allocate(16, 16)
	require.Nil(t, p, "grow must not be attempted while the breaker is open")
	require.Equal(t, int64(0), a.FreeBinCount(classIndex))
}

func TestMagazineRunFlushesToGlobal(t *testing.T) {
	a := New(Config{})
	classIndex, ok := a.ClassForSize(16, 16)
	require.True(t, ok)

	var p unsafe.Pointer
	a.Magazines().Run(func() {
		p = a.Allocate(16, 16)
		require.NotNil(t, p)
		a.Deallocate(p, 16)
	})

	found := false
	for {
		q := a.states[classIndex].popFree()
		if q == nil {
			break
		}
		if q == p {
			found = true
		}
	}
	require.True(t, found, "pointer freed on exiting goroutine must reach the global free list")
}
