/*
Package drift estimates the relation between a stream's local clock and the
global clock.

The model is affine:

	global ≈ offset + rate·local

and it's fitted with least squares over a sliding window of correlation
pairs. Each pair is a local timestamp matched with the global time observed
when the data carrying that timestamp arrived.
*/
package drift

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pipelined.dev/clocksync/clock"
)

var (
	// ErrNotConverged is returned when estimate is queried before enough
	// samples with enough local time span were observed.
	ErrNotConverged = errors.New("clock not converged")
	// ErrNonMonotonic is returned when local time of the pair is not after
	// the previous one. Pair is ignored.
	ErrNonMonotonic = errors.New("non-monotonic local time")
	// ErrOutlier is returned when pair deviates from the current fit more
	// than allowed. Pair is ignored.
	ErrOutlier = errors.New("correlation outlier")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid drift config")
)

// Default values of estimator config.
const (
	DefaultWindowSize       = 128
	DefaultMinSamples       = 8
	DefaultMinSpan          = 500 * time.Millisecond
	DefaultStalenessTimeout = 2 * time.Second
	// outliers in a row after which the window is restarted.
	maxConsecutiveOutliers = 8
)

// Config of the estimator. Zero values are replaced with defaults.
type Config struct {
	// WindowSize is the maximum number of pairs used in regression.
	WindowSize int
	// MinSamples is the number of pairs required for a valid estimate.
	MinSamples int
	// MinSpan is the local time range the window must cover for a valid
	// estimate.
	MinSpan time.Duration
	// StalenessTimeout marks estimate stale if no pairs arrived for longer.
	StalenessTimeout time.Duration
	// OutlierThreshold rejects pairs further from the fit than this value.
	// Zero disables rejection.
	OutlierThreshold time.Duration
}

// WithDefaults returns copy of config with zero values set to defaults.
func (c Config) WithDefaults() Config {
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MinSamples == 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.MinSpan == 0 {
		c.MinSpan = DefaultMinSpan
	}
	if c.StalenessTimeout == 0 {
		c.StalenessTimeout = DefaultStalenessTimeout
	}
	return c
}

// Validate checks that config values make sense.
func (c Config) Validate() error {
	switch {
	case c.WindowSize < 2:
		return fmt.Errorf("%w: window size %d must be at least 2", ErrInvalidConfig, c.WindowSize)
	case c.MinSamples < 2:
		return fmt.Errorf("%w: min samples %d must be at least 2", ErrInvalidConfig, c.MinSamples)
	case c.MinSamples > c.WindowSize:
		return fmt.Errorf("%w: min samples %d exceeds window size %d", ErrInvalidConfig, c.MinSamples, c.WindowSize)
	case c.MinSpan < 0 || c.StalenessTimeout < 0 || c.OutlierThreshold < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// Pair is a single correlation sample.
type Pair struct {
	Local  clock.Time
	Global clock.Time
}

// Confidence describes how much an estimate can be trusted.
type Confidence uint8

const (
	// ConfidenceNone means estimate has not converged.
	ConfidenceNone Confidence = iota
	// ConfidenceDegraded means estimate converged, but is stale.
	ConfidenceDegraded
	// ConfidenceGood means estimate converged and is fresh.
	ConfidenceGood
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceGood:
		return "good"
	case ConfidenceDegraded:
		return "degraded"
	}
	return "none"
}

// Estimate is a snapshot of the affine mapping between local and global
// time.
type Estimate struct {
	// Offset is the global time of local zero, in nanoseconds.
	Offset float64
	// Rate is the slope of global time against local time, dGlobal/dLocal.
	// A device whose clock runs slow reports rate above 1: each local
	// second spans more than a global second. A device running 100 ppm
	// fast reports about 0.9999.
	Rate float64
	// Samples is the number of pairs in the window.
	Samples int
	// Valid is true when estimate has converged.
	Valid bool
	// Stale is true when no pairs arrived within staleness timeout.
	Stale bool
	// Residual is the root mean square error of the fit.
	Residual time.Duration
	// Updated is the global time of the latest pair.
	Updated clock.Time

	// mapping is kept relative to origin to avoid precision loss on large
	// timestamps.
	originLocal  clock.Time
	originGlobal clock.Time
	intercept    float64
}

// PassThrough returns estimate which maps local time one to one with the
// provided offset.
func PassThrough(offset clock.Time) Estimate {
	return Estimate{
		Offset:       float64(offset),
		Rate:         1,
		originGlobal: offset,
	}
}

// Affine returns valid estimate with provided offset and rate. It's useful
// when mapping is known upfront.
func Affine(offset clock.Time, rate float64) Estimate {
	return Estimate{
		Offset:       float64(offset),
		Rate:         rate,
		Valid:        true,
		originGlobal: offset,
	}
}

// Global maps local time to global time.
func (e Estimate) Global(local clock.Time) clock.Time {
	rate := e.Rate
	if rate == 0 {
		rate = 1
	}
	d := float64(local - e.originLocal)
	return e.originGlobal + clock.Time(math.Round(e.intercept+rate*d))
}

// Local maps global time to local time.
func (e Estimate) Local(global clock.Time) clock.Time {
	rate := e.Rate
	if rate == 0 {
		rate = 1
	}
	d := float64(global-e.originGlobal) - e.intercept
	return e.originLocal + clock.Time(math.Round(d/rate))
}

// Confidence returns confidence level of the estimate.
func (e Estimate) Confidence() Confidence {
	switch {
	case !e.Valid:
		return ConfidenceNone
	case e.Stale:
		return ConfidenceDegraded
	}
	return ConfidenceGood
}

// Drift returns deviation of rate from 1 in parts per million.
func (e Estimate) Drift() float64 {
	return (e.Rate - 1) * 1e6
}

func (e Estimate) String() string {
	return fmt.Sprintf("rate=%.9f offset=%v samples=%d confidence=%v",
		e.Rate, time.Duration(e.Offset), e.Samples, e.Confidence())
}
