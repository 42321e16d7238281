package memkit

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Buffer is a typed, RAII-style view over a single raw allocation. It is
// bound to a RawAllocator at construction and must not be used after that
// allocator is no longer valid. Release deallocates on its first call
// only; any later call returns without reaching the allocator, so the
// debug layer's double-free detection never sees a repeated Release.
type Buffer struct {
	alloc    RawAllocator
	ptr      unsafe.Pointer
	size     uintptr
	released atomic.Bool
}

// NewBuffer allocates size bytes aligned to alignment from alloc and wraps
// the result. Returns an error if alloc is nil or the underlying
// allocation fails.
func NewBuffer(alloc RawAllocator, size, alignment uintptr) (*Buffer, error) {
	if alloc == nil {
		return nil, errNilAllocator
	}
	p := alloc.Allocate(size, alignment)
	if p == nil {
		return nil, fmt.Errorf("memkit: allocation of %d bytes failed", size)
	}
	return &Buffer{alloc: alloc, ptr: p, size: size}, nil
}

// Bytes returns a []byte view over the buffer's memory. The slice is only
// valid until Release is called.
func (b *Buffer) Bytes() []byte {
	if b.ptr == nil || b.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.ptr), int(b.size))
}

// Pointer returns the raw pointer backing the buffer.
func (b *Buffer) Pointer() unsafe.Pointer { return b.ptr }

// Size returns the buffer's byte length.
func (b *Buffer) Size() uintptr { return b.size }

// Release returns the buffer's memory to its bound allocator. Safe to call
// more than once; only the first call has any effect.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.alloc.Deallocate(b.ptr, b.size)
	b.ptr = nil
}
