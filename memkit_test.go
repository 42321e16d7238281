package memkit

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/vornengine/memkit/internal/arena"
)

func TestEngineAllocateSmallRoundTrip(t *testing.T) {
	e := NewEngine()

	p := e.Allocate(24, 16)
	require.NotNil(t, p)
	require.Equal(t, uintptr(0), uintptr(p)%16)

	b := unsafe.Slice((*byte)(p), 24)
	for i := range b {
		b[i] = byte(i)
	}

	e.Deallocate(p, 24)
}

func TestEngineAllocateRoutesOversizeToLarge(t *testing.T) {
	e := NewEngine()

	p := e.Allocate(1<<20, 16)
	require.NotNil(t, p)
	e.Deallocate(p, 1<<20)
}

func TestEngineAllocateZeroAlignmentDefaultsToOne(t *testing.T) {
	e := NewEngine()
	p := e.Allocate(16, 0)
	require.NotNil(t, p)
	e.Deallocate(p, 16)
}

func TestBufferReleaseIsIdempotent(t *testing.T) {
	e := NewEngine()
	buf, err := NewBuffer(e, 64, 16)
	require.NoError(t, err)

	b := buf.Bytes()
	require.Len(t, b, 64)
	for i := range b {
		b[i] = byte(i)
	}

	buf.Release()
	buf.Release()
}

func TestNewBufferNilAllocator(t *testing.T) {
	_, err := NewBuffer(nil, 16, 16)
	require.ErrorIs(t, err, errNilAllocator)
}

func TestWithFrameArenaBumpsThenTearsDown(t *testing.T) {
	var used uintptr
	err := WithFrameArena(1<<16, func(f *arena.FrameArena) {
		f.Arena().Alloc(100, 8)
		used = f.Arena().Used()
	})
	require.NoError(t, err)
	require.Equal(t, uintptr(100), used)
}

func TestDefaultSingletonIsStable(t *testing.T) {
	e1 := Default()
	e2 := Default()
	require.Same(t, e1, e2)
}
