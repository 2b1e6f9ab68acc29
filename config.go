package clocksync

import (
	"fmt"
	"time"

	"github.com/rs/xid"

	"pipelined.dev/clocksync/drift"
	"pipelined.dev/clocksync/resample"
)

// Kind of the stream.
type Kind uint8

const (
	// Audio stream carries sample blocks.
	Audio Kind = iota
	// Midi stream carries MIDI events.
	Midi
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Midi:
		return "midi"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// StreamID identifies a registered stream. Zero value is not a valid id.
type StreamID xid.ID

func newStreamID() StreamID {
	return StreamID(xid.New())
}

func (id StreamID) String() string {
	return xid.ID(id).String()
}

// IsZero returns true if id is not initialized.
func (id StreamID) IsZero() bool {
	return xid.ID(id).IsNil()
}

// Default stream configuration values.
const (
	DefaultRingCapacity        = 64
	DefaultStaleFallback       = 5 * time.Second
	DefaultCorrelationInterval = 1
)

// StreamConfig defines stream queues, drift estimation and compensation.
// Zero values are replaced with defaults.
type StreamConfig struct {
	// RingCapacity is the capacity of inbound and outbound queues.
	RingCapacity int
	// WindowSize is the number of correlation pairs used for estimate.
	WindowSize int
	// MinSamples is the number of pairs required for converged estimate.
	MinSamples int
	// MinSpan is the local time range required for converged estimate.
	MinSpan time.Duration
	// StalenessTimeout marks estimate stale when no pairs arrived.
	StalenessTimeout time.Duration
	// OutlierThreshold rejects pairs which deviate from estimate more. Zero
	// disables the rejection.
	OutlierThreshold time.Duration
	// StaleFallback switches audio compensation to pass-through if
	// estimate is stale for longer.
	StaleFallback time.Duration
	// ResampleQuality selects interpolation kernel for audio.
	ResampleQuality resample.Quality
	// RateSmoothing is the share of rate change applied per audio block.
	RateSmoothing float64
	// CorrelationInterval takes a correlation pair every n-th push.
	CorrelationInterval int
	// SampleRate and Channels of audio stream. Required for audio.
	SampleRate int
	Channels   int
}

// WithDefaults returns copy of config with zero values set to defaults.
func (c StreamConfig) WithDefaults() StreamConfig {
	if c.RingCapacity == 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.StaleFallback == 0 {
		c.StaleFallback = DefaultStaleFallback
	}
	if c.RateSmoothing == 0 {
		c.RateSmoothing = resample.DefaultSmoothing
	}
	if c.CorrelationInterval == 0 {
		c.CorrelationInterval = DefaultCorrelationInterval
	}
	d := c.drift().WithDefaults()
	c.WindowSize = d.WindowSize
	c.MinSamples = d.MinSamples
	c.MinSpan = d.MinSpan
	c.StalenessTimeout = d.StalenessTimeout
	return c
}

// Validate checks the config for the stream kind. Zero values are valid.
func (c StreamConfig) Validate(kind Kind) error {
	c = c.WithDefaults()
	switch {
	case kind != Audio && kind != Midi:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidConfig, kind)
	case c.RingCapacity < 0:
		return fmt.Errorf("%w: negative ring capacity %d", ErrInvalidConfig, c.RingCapacity)
	case c.StaleFallback < 0:
		return fmt.Errorf("%w: negative stale fallback %v", ErrInvalidConfig, c.StaleFallback)
	case c.RateSmoothing < 0 || c.RateSmoothing > 1:
		return fmt.Errorf("%w: rate smoothing %v out of range", ErrInvalidConfig, c.RateSmoothing)
	case c.CorrelationInterval < 0:
		return fmt.Errorf("%w: negative correlation interval %d", ErrInvalidConfig, c.CorrelationInterval)
	case c.ResampleQuality > resample.Sinc:
		return fmt.Errorf("%w: unknown resample quality %v", ErrInvalidConfig, c.ResampleQuality)
	case kind == Audio && c.SampleRate <= 0:
		return fmt.Errorf("%w: audio sample rate %d", ErrInvalidConfig, c.SampleRate)
	case kind == Audio && c.Channels <= 0:
		return fmt.Errorf("%w: audio channels %d", ErrInvalidConfig, c.Channels)
	}
	if err := c.drift().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c StreamConfig) drift() drift.Config {
	return drift.Config{
		WindowSize:       c.WindowSize,
		MinSamples:       c.MinSamples,
		MinSpan:          c.MinSpan,
		StalenessTimeout: c.StalenessTimeout,
		OutlierThreshold: c.OutlierThreshold,
	}
}

func (c StreamConfig) resample() resample.Config {
	return resample.Config{
		Channels:      c.Channels,
		SampleRate:    c.SampleRate,
		Quality:       c.ResampleQuality,
		Smoothing:     c.RateSmoothing,
		StaleFallback: c.StaleFallback,
	}
}
