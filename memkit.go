// Package memkit implements a three-tier memory allocator: a virtual-memory
// substrate, a small-object binned allocator with thread-local magazines,
// a large-object page allocator, and a monotonic frame arena, aimed at a
// game engine's hot allocation path.
package memkit

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/vornengine/memkit/internal/arena"
	"github.com/vornengine/memkit/internal/binned"
	"github.com/vornengine/memkit/internal/large"
)

// RawAllocator is the abstract byte-allocator contract every tier of this
// module, and every caller that only needs raw bytes, is expected to
// program against. Alignment must be a power of two ≥ 1. Allocate returns
// nil on transient inability (OOM or backoff gating), never an error: the
// caller is expected to treat nil as immediate failure. Deallocate must be
// called exactly once per successful Allocate, passing the same size (the
// large tier recovers its own true size from its header, but small-tier
// frees must pass the original request size to route correctly).
type RawAllocator interface {
	Allocate(size, alignment uintptr) unsafe.Pointer
	Deallocate(p unsafe.Pointer, size uintptr)
}

// Engine is memkit's concrete RawAllocator: small requests route through
// the binned allocator's thread-local fast path, everything else routes
// directly to the large-object tier.
type Engine struct {
	binned *binned.Allocator
	large  *large.Allocator
	logger *zap.Logger
	cfg    Config
}

// NewEngine constructs a standalone allocator engine. Most programs should
// use Initialize plus Default instead, to share one process-wide engine.
func NewEngine(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		binned: binned.New(binned.Config{
			MagazineCapacity:      cfg.MagazineCapacity,
			Debug:                 cfg.Debug,
			GuardPagesOnLarge:     cfg.GuardPages,
			PressureHandler:       cfg.pressureHandler(),
			Breaker:               cfg.Breaker,
			EnableOccupancyBitmap: cfg.EnableOccupancyBitmap,
		}),
		logger: cfg.Logger,
		cfg:    cfg,
	}
	e.large = e.binned.Large()
	return e
}

// Allocate implements RawAllocator.
func (e *Engine) Allocate(size, alignment uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	if alignment == 0 {
		alignment = 1
	}
	if _, ok := e.binned.ClassForSize(size, alignment); ok {
		return e.binned.Allocate(size, alignment)
	}
	return e.binned.AllocateLarge(size, alignment, e.cfg.GuardPages)
}

// Deallocate implements RawAllocator. It always goes through the binned
// allocator's deallocate path, which itself probes the large-tier header
// first — the single source of truth for which tier owns p — so callers
// never need to track which tier an allocation came from.
func (e *Engine) Deallocate(p unsafe.Pointer, size uintptr) {
	e.binned.Deallocate(p, size)
}

// FlushTLS drains the calling goroutine's magazine to the global free
// lists. Call this at frame boundaries on goroutines not run through
// Magazines().Run.
func (e *Engine) FlushTLS() { e.binned.FlushTLS() }

// Magazines exposes the thread-local magazine registry so callers can run
// worker goroutines through Registry.Run and get the thread-exit flush
// behavior automatically.
func (e *Engine) Magazines() interface {
	Run(func())
	Flush()
} {
	return e.binned.Magazines()
}

// NewArena reserves a capacity-byte bump-pointer arena backed by this
// engine's own VM substrate usage pattern (arenas reserve their own
// region independently of the binned/large tiers).
func NewArena(capacity uintptr) (*arena.Arena, error) {
	return arena.New(capacity)
}

// WithFrameArena reserves a capacity-byte frame arena, runs body with it
// open as a single frame, and tears both the frame and its VM region down
// afterward, including when body panics.
func WithFrameArena(capacity uintptr, body func(*arena.FrameArena)) error {
	return arena.WithFrameArena(capacity, body)
}

// AuditClass runs the optional occupancy-bitmap consistency check for one
// of the engine's small-object size classes. It is a no-op unless the
// engine was built WithOccupancyBitmap(true).
func (e *Engine) AuditClass(classIndex int) error {
	return e.binned.AuditClass(classIndex)
}

var errNilAllocator = fmt.Errorf("memkit: allocator is nil")
