package memkit

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vornengine/memkit/internal/binned"
)

// Config holds the tunables accepted by NewEngine and Initialize. Callers
// build it via Option functions rather than constructing it directly.
type Config struct {
	// MagazineCapacity is the per-class, per-goroutine magazine stack
	// capacity. Defaults to the magazine package's DefaultCapacity.
	MagazineCapacity int

	// Debug enables canary poisoning, quarantine, double-free detection and
	// leak tagging. Expensive; intended for development and test builds.
	Debug bool

	// GuardPages enables no-access guard pages flanking large-tier
	// allocations. Defaults to Debug's value if never set explicitly.
	GuardPages    bool
	guardPagesSet bool

	// Logger receives a warning for each failed size-class grow, with the
	// resulting backoff delay. Never used on the allocate/deallocate hot
	// path.
	Logger *zap.Logger

	// Breaker, if set, gates repeated growth failures on top of (not
	// instead of) the unconditional per-class exponential backoff.
	Breaker *gobreaker.CircuitBreaker

	// EnableOccupancyBitmap turns on the optional, off-by-default
	// block-occupancy cross-check consumed by Engine.AuditClass.
	EnableOccupancyBitmap bool

	onPressure func(binSize uintptr, delay time.Duration)
}

func defaultConfig() Config {
	return Config{
		MagazineCapacity: 32,
		Logger:           zap.NewNop(),
	}
}

// pressureHandler adapts Config's logging + user hook into the
// binned.PressureHandler signature, logging every growth-failure event at
// warn level in addition to invoking any user-supplied hook.
func (c Config) pressureHandler() binned.PressureHandler {
	return func(binSize uintptr, delay time.Duration) {
		c.Logger.Warn("size class growth failed, backing off",
			zap.Uint64("bin_size", uint64(binSize)),
			zap.Duration("backoff", delay),
		)
		if c.onPressure != nil {
			c.onPressure(binSize, delay)
		}
	}
}

// Option configures a Config in NewEngine or Initialize.
type Option func(*Config)

// WithMagazineCapacity sets the per-class thread-local magazine stack
// capacity.
func WithMagazineCapacity(cap int) Option {
	return func(c *Config) { c.MagazineCapacity = cap }
}

// WithDebug enables the debug layer (canaries, quarantine, double-free and
// leak tracking).
func WithDebug(enabled bool) Option {
	return func(c *Config) {
		c.Debug = enabled
		if !c.guardPagesSet {
			c.GuardPages = enabled
		}
	}
}

// WithGuardPages explicitly controls large-tier guard pages, overriding the
// default of following WithDebug.
func WithGuardPages(enabled bool) Option {
	return func(c *Config) {
		c.GuardPages = enabled
		c.guardPagesSet = true
	}
}

// WithLogger sets the structured logger used for lifecycle and pressure
// events. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithPressureHandler installs an additional hook invoked whenever a size
// class's grow attempt fails, alongside the engine's own logging.
func WithPressureHandler(fn func(binSize uintptr, delay time.Duration)) Option {
	return func(c *Config) { c.onPressure = fn }
}

// WithCircuitBreaker installs a circuit breaker that gates repeated growth
// failures on top of the unconditional per-class backoff.
func WithCircuitBreaker(b *gobreaker.CircuitBreaker) Option {
	return func(c *Config) { c.Breaker = b }
}

// WithOccupancyBitmap enables the optional block-occupancy consistency
// check used by Engine.AuditClass. Off by default; never consulted on the
// hot path even when enabled.
func WithOccupancyBitmap(enabled bool) Option {
	return func(c *Config) { c.EnableOccupancyBitmap = enabled }
}

// NewDefaultBreaker returns a gobreaker.CircuitBreaker preconfigured to
// open after 5 consecutive growth failures and probe again after 1 second,
// a reasonable starting point for WithCircuitBreaker.
func NewDefaultBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
