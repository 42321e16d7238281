// Command memkit-bench drives the seed-suite allocation scenarios against a
// live engine and reports timing and allocator statistics.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vornengine/memkit"
	"github.com/vornengine/memkit/internal/arena"
)

func main() {
	var (
		scenario    = flag.String("scenario", "all", "scenario to run: small, large, frame, workers, all")
		iterations  = flag.Int("iterations", 100000, "iterations for the small round-trip scenario")
		workers     = flag.Int("workers", 8, "goroutine fan-out for the workers scenario")
		debug       = flag.Bool("debug", false, "enable the debug layer (canaries, quarantine, leak tracking)")
		jsonLogging = flag.Bool("json-logs", false, "emit structured logs as JSON instead of console format")
	)
	flag.Parse()

	logger := newLogger(*jsonLogging)
	defer logger.Sync()

	opts := []memkit.Option{memkit.WithLogger(logger), memkit.WithDebug(*debug)}
	engine := memkit.NewEngine(opts...)

	switch *scenario {
	case "small":
		runSmallRoundTrip(logger, engine, *iterations)
	case "large":
		runLargeSpill(logger, engine)
	case "frame":
		runFrameArena(logger)
	case "workers":
		must(runWorkers(logger, engine, *workers))
	case "all":
		runSmallRoundTrip(logger, engine, *iterations)
		runLargeSpill(logger, engine)
		runFrameArena(logger)
		must(runWorkers(logger, engine, *workers))
	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *scenario)
		os.Exit(1)
	}
}

func newLogger(jsonOutput bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		cfg.Encoding = "json"
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func runSmallRoundTrip(logger *zap.Logger, e *memkit.Engine, iterations int) {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		p := e.Allocate(24, 16)
		if p == nil {
			logger.Warn("small allocation failed", zap.Int("iteration", i))
			continue
		}
		e.Deallocate(p, 24)
	}
	logger.Info("small round-trip scenario complete",
		zap.Int("iterations", iterations),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func runLargeSpill(logger *zap.Logger, e *memkit.Engine) {
	start := time.Now()
	p := e.Allocate(64, 4096)
	if p == nil {
		logger.Error("large alignment-spill allocation failed")
		return
	}
	b := unsafe.Slice((*byte)(p), 64)
	for i := range b {
		b[i] = byte(i)
	}
	e.Deallocate(p, 64)
	logger.Info("alignment spill scenario complete", zap.Duration("elapsed", time.Since(start)))
}

func runFrameArena(logger *zap.Logger) {
	start := time.Now()
	var used uintptr
	err := memkit.WithFrameArena(4<<20, func(f *arena.FrameArena) {
		for i := 0; i < 256; i++ {
			p := f.Arena().Alloc(4096, 16)
			if p == nil {
				break
			}
		}
		used = f.Arena().Used()
	})
	if err != nil {
		logger.Error("frame arena scenario failed", zap.Error(err))
		return
	}
	logger.Info("frame arena scenario complete",
		zap.Uint64("bytesUsed", uint64(used)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func runWorkers(logger *zap.Logger, e *memkit.Engine, n int) error {
	start := time.Now()
	var g errgroup.Group
	for w := 0; w < n; w++ {
		g.Go(func() error {
			var err error
			e.Magazines().Run(func() {
				for i := 0; i < 1000; i++ {
					p := e.Allocate(32, 16)
					if p == nil {
						err = fmt.Errorf("worker allocation failed at iteration %d", i)
						return
					}
					e.Deallocate(p, 32)
				}
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("worker fan-out scenario complete",
		zap.Int("workers", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
