package memkit

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

var (
	defaultEngine atomic.Pointer[Engine]
	initOnce      sync.Once
	initErr       error
)

// Initialize constructs the process-wide default engine exactly once; a
// second call returns the error (nil on success) from the first call
// without reconstructing anything, mirroring a constructor-guarded global.
func Initialize(opts ...Option) error {
	initOnce.Do(func() {
		e := NewEngine(opts...)
		defaultEngine.Store(e)
	})
	return initErr
}

// Default returns the process-wide engine, initializing it with default
// options on first use if Initialize was never called.
func Default() *Engine {
	if e := defaultEngine.Load(); e != nil {
		return e
	}
	_ = Initialize()
	return defaultEngine.Load()
}

// Alloc is a package-level convenience wrapping Default().Allocate.
func Alloc(size, alignment uintptr) unsafe.Pointer {
	return Default().Allocate(size, alignment)
}

// Free is a package-level convenience wrapping Default().Deallocate.
func Free(p unsafe.Pointer, size uintptr) {
	Default().Deallocate(p, size)
}

// FlushTLS flushes the calling goroutine's magazine on the default engine.
func FlushTLS() {
	Default().FlushTLS()
}
