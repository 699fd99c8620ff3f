// Package timeouts provides centralized timeout values for store calls,
// outbound delivery and background runs.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks
//   - Short: single-record reads and the ballot write
//   - Medium: ledger listings, roster lookups, completion checks
//   - Long: one full dispatch (render plus fan-out to every recipient)
//   - Sweep: one deadline sweep run
//   - Delivery: one delivery attempt to one recipient
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultMedium   = 10 * time.Second
	DefaultLong     = 2 * time.Minute
	DefaultSweep    = 5 * time.Minute
	DefaultDelivery = 20 * time.Second
)

var mu sync.RWMutex

var current = Config{
	Ping:     DefaultPing,
	Short:    DefaultShort,
	Medium:   DefaultMedium,
	Long:     DefaultLong,
	Sweep:    DefaultSweep,
	Delivery: DefaultDelivery,
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Medium   time.Duration
	Long     time.Duration
	Sweep    time.Duration
	Delivery time.Duration
}

func get(f func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return f(current)
}

func Ping() time.Duration     { return get(func(c Config) time.Duration { return c.Ping }) }
func Short() time.Duration    { return get(func(c Config) time.Duration { return c.Short }) }
func Medium() time.Duration   { return get(func(c Config) time.Duration { return c.Medium }) }
func Long() time.Duration     { return get(func(c Config) time.Duration { return c.Long }) }
func Sweep() time.Duration    { return get(func(c Config) time.Duration { return c.Sweep }) }
func Delivery() time.Duration { return get(func(c Config) time.Duration { return c.Delivery }) }

// Configure sets custom timeout values. Zero values in cfg are ignored.
// Call during startup before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	set(&current.Ping, cfg.Ping)
	set(&current.Short, cfg.Short)
	set(&current.Medium, cfg.Medium)
	set(&current.Long, cfg.Long)
	set(&current.Sweep, cfg.Sweep)
	set(&current.Delivery, cfg.Delivery)
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = Config{
		Ping:     DefaultPing,
		Short:    DefaultShort,
		Medium:   DefaultMedium,
		Long:     DefaultLong,
		Sweep:    DefaultSweep,
		Delivery: DefaultDelivery,
	}
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context ended because the deadline was exceeded.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "manual dispatch")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
