/*
Package resample corrects audio for clock drift with continuous fractional
resampling.

Output frame n is placed on the global timeline at anchor + n/sampleRate,
where anchor is the global time of the first input frame. Its input position
is the inverse of the drift estimate at that global time. The compensator
advances the read position by 1/rate per output frame and pulls it toward
the mapped position, so timing error collected while the estimate converged
is recovered and stays bounded. The value at the fractional position is
reconstructed with an interpolation kernel. Trailing input frames are
carried over between blocks, so the kernel never needs frames which were not
delivered yet.
*/
package resample

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/drift"
	"pipelined.dev/clocksync/signal"
)

// ErrChannels is returned when block channel count doesn't match the
// compensator.
var ErrChannels = errors.New("channel count mismatch")

// DefaultSmoothing is the share of rate difference applied per block.
const DefaultSmoothing = 0.05

const (
	// phase errors below are ignored, in frames.
	phaseDeadband = 0.05
	// maxSlew limits the position correction per output frame.
	maxSlew = 1e-3
	// phase errors above restart the timeline, in seconds.
	maxPhase = 0.1
)

// Mode defines whether compensation is applied.
type Mode uint8

const (
	// CompensateAuto applies correction once estimate has converged.
	CompensateAuto Mode = iota
	// CompensateNever always passes signal through.
	CompensateNever
)

func (m Mode) String() string {
	if m == CompensateNever {
		return "never"
	}
	return "auto"
}

// Config of the compensator.
type Config struct {
	Channels   int
	SampleRate int
	Quality    Quality
	// Smoothing is the share of the difference between target and current
	// rate applied per block. The same share of phase error is recovered
	// per block. Zero means default, one applies new rate immediately.
	Smoothing float64
	// StaleFallback switches to pass-through if estimate was not updated
	// for longer. Zero disables the fallback for stale estimates.
	StaleFallback time.Duration
}

// Compensator re-times a single audio stream onto the global clock. It's not
// safe for concurrent use.
type Compensator struct {
	cfg    Config
	kernel Kernel
	before int
	after  int
	mode   Mode

	// hist holds carried over and new input frames per channel.
	hist signal.Float64
	// pos is the read position in hist.
	pos float64
	// consumed is the local frame index of hist[before] at start.
	consumed int64
	started  bool
	base     clock.Time
	// anchor is the global time of output frame zero.
	anchor clock.Time
	phase  float64

	rate     float64
	fallback bool
	produced int64
}

// New returns a new compensator.
func New(cfg Config) *Compensator {
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = DefaultSmoothing
	}
	k := KernelOf(cfg.Quality)
	before, after := k.Support()
	c := Compensator{
		cfg:    cfg,
		kernel: k,
		before: before,
		after:  after,
		rate:   1,
	}
	c.reset(cfg.Channels)
	return &c
}

// SetMode changes compensation mode.
func (c *Compensator) SetMode(m Mode) {
	c.mode = m
}

// Mode returns current compensation mode.
func (c *Compensator) Mode() Mode {
	return c.mode
}

// Rate returns the rate currently applied.
func (c *Compensator) Rate() float64 {
	return c.rate
}

// Fallback returns true if the last block was passed through because
// estimate was not usable.
func (c *Compensator) Fallback() bool {
	return c.fallback
}

// Produced returns number of frames produced so far.
func (c *Compensator) Produced() int64 {
	return c.produced
}

// Phase returns the phase error measured before the last block, in frames.
// Positive value means output is behind the global timeline.
func (c *Compensator) Phase() float64 {
	return c.phase
}

// Pending returns number of input frames held for the kernel look-ahead.
func (c *Compensator) Pending() int {
	return c.hist.Size() - int(c.pos)
}

func (c *Compensator) reset(channels int) {
	c.cfg.Channels = channels
	c.hist = signal.EmptyFloat64(channels, c.before)
	c.pos = float64(c.before)
}

// target returns the rate which should be applied for the estimate.
func (c *Compensator) target(est drift.Estimate, estErr error, now clock.Time) (float64, bool) {
	switch {
	case c.mode == CompensateNever:
		return 1, false
	case estErr != nil || !est.Valid:
		return 1, true
	case c.cfg.StaleFallback > 0 && now.Sub(est.Updated) > c.cfg.StaleFallback:
		return 1, true
	case est.Rate <= 0 || math.IsNaN(est.Rate) || math.IsInf(est.Rate, 0):
		return 1, true
	}
	return est.Rate, false
}

// Process consumes the input block and returns corrected block. The output
// may be shorter or longer than input depending on the rate, and it lags by
// the kernel look-ahead. Estimate error is the one returned by the drift
// estimator: if estimate is not usable, the signal is passed through with
// rate 1 and the last known offset.
func (c *Compensator) Process(in signal.Block, est drift.Estimate, estErr error, now clock.Time) (signal.Block, error) {
	if c.cfg.Channels == 0 {
		c.reset(in.Channels())
	}
	if in.Channels() != c.cfg.Channels {
		return signal.Block{}, fmt.Errorf("%w: expected %d, got %d", ErrChannels, c.cfg.Channels, in.Channels())
	}
	if c.cfg.SampleRate == 0 {
		c.cfg.SampleRate = in.SampleRate
	}
	if !c.started {
		c.started = true
		c.base = in.Local
		c.anchor = est.Global(in.Local)
	}

	target, fallback := c.target(est, estErr, now)
	c.fallback = fallback
	c.rate += (target - c.rate) * c.cfg.Smoothing
	step := 1 / c.rate

	c.hist = c.hist.Append(in.Data)
	available := c.hist.Size()

	// local position of the first output frame
	startFrame := float64(c.consumed) + c.pos - float64(c.before)
	switch {
	case c.mode == CompensateNever:
		c.rebase(est, startFrame)
	case !fallback:
		step += c.correction(est, startFrame, float64(available-c.after)-c.pos)
	}

	capacity := int(float64(available-int(c.pos))/step) + 1
	if capacity < 0 {
		capacity = 0
	}
	out := make(signal.Float64, c.cfg.Channels)
	for ch := range out {
		out[ch] = make([]float64, 0, capacity)
	}
	for {
		i := int(c.pos)
		if i+c.after >= available {
			break
		}
		frac := c.pos - float64(i)
		for ch := range out {
			out[ch] = append(out[ch], c.kernel.Interpolate(c.hist[ch], i, frac))
		}
		c.pos += step
	}

	// drop frames which are no longer needed by the kernel
	if drop := int(c.pos) - c.before; drop > 0 {
		if drop > available {
			drop = available
		}
		for ch := range c.hist {
			n := copy(c.hist[ch], c.hist[ch][drop:])
			c.hist[ch] = c.hist[ch][:n]
		}
		c.pos -= float64(drop)
		c.consumed += int64(drop)
	}

	frames := out.Size()
	c.produced += int64(frames)
	local := c.localAt(startFrame)
	return signal.Block{
		Data:       out,
		SampleRate: in.SampleRate,
		Format:     in.Format,
		Local:      local,
		Global:     est.Global(local),
	}, nil
}

// rebase moves the timeline anchor so the next output frame maps to the
// current read position.
func (c *Compensator) rebase(est drift.Estimate, frame float64) {
	c.anchor = est.Global(c.localAt(frame)) - clock.Time(clock.FramesToDuration(c.produced, c.cfg.SampleRate))
	c.phase = 0
}

// correction returns the step adjustment which recovers a share of the
// phase error over the frames left in the block.
func (c *Compensator) correction(est drift.Estimate, frame, left float64) float64 {
	if c.cfg.SampleRate <= 0 {
		return 0
	}
	global := c.anchor + clock.Time(clock.FramesToDuration(c.produced, c.cfg.SampleRate))
	want := float64(est.Local(global)-c.base) * float64(c.cfg.SampleRate) / float64(time.Second)
	c.phase = want - frame
	switch {
	case math.Abs(c.phase) > maxPhase*float64(c.cfg.SampleRate):
		c.rebase(est, frame)
		return 0
	case math.Abs(c.phase) < phaseDeadband:
		return 0
	}
	frames := left * c.rate
	if frames < 1 {
		frames = 1
	}
	corr := c.phase * c.cfg.Smoothing / frames
	return math.Max(-maxSlew, math.Min(maxSlew, corr))
}

// localAt returns local time of fractional frame position.
func (c *Compensator) localAt(frame float64) clock.Time {
	if c.cfg.SampleRate <= 0 {
		return c.base
	}
	return c.base + clock.Time(math.Round(frame*float64(time.Second)/float64(c.cfg.SampleRate)))
}
