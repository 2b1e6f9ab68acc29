package clocksync

import (
	"fmt"
	"time"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/log"
)

// Default engine configuration values.
const (
	DefaultMaxStreams = 64
	DefaultInterval   = 5 * time.Millisecond
)

// Option configures the engine.
type Option func(*Engine) error

// WithClock sets the global clock. Monotonic clock is used by default.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidConfig)
		}
		e.clock = c
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidConfig)
		}
		e.logger = l
		return nil
	}
}

// WithMaxStreams limits the number of registered streams.
func WithMaxStreams(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: max streams %d", ErrInvalidConfig, n)
		}
		e.maxStreams = n
		return nil
	}
}

// WithInterval sets the interval between processing passes when engine is
// running.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("%w: interval %v", ErrInvalidConfig, d)
		}
		e.interval = d
		return nil
	}
}

// WithMetric enables publishing of stream counters with expvar. Enabled by
// default.
func WithMetric(enabled bool) Option {
	return func(e *Engine) error {
		e.metric = enabled
		return nil
	}
}
