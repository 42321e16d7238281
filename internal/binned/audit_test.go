package binned

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAuditClassDisabledByDefault(t *testing.T) {
	a := New(Config{})
	require.NoError(t, a.AuditClass(0))
}

func TestAuditClassConsistentAfterGrow(t *testing.T) {
	a := New(Config{EnableOccupancyBitmap: true})
	classIndex, ok := a.ClassForSize(16, 16)
	require.True(t, ok)

	require.True(t, a.grow(classIndex))
	require.NoError(t, a.AuditClass(classIndex))
}

func TestAuditClassDetectsCycleCorruption(t *testing.T) {
	a := New(Config{EnableOccupancyBitmap: true})
	classIndex, ok := a.ClassForSize(16, 16)
	require.True(t, ok)

	require.True(t, a.grow(classIndex))
	state := a.states[classIndex]

	head := state.freeListHead
	second := *(*uintptr)(unsafe.Pointer(head))
	require.NotZero(t, second, "grown block must contain at least two bins")

	// Point the second node back at the head, turning the tail of the free
	// list into a 2-cycle.
	*(*uintptr)(unsafe.Pointer(second)) = head

	require.Error(t, a.AuditClass(classIndex))
}
