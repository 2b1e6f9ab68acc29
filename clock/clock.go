// Package clock provides the global time reference all streams are
// corrected against.
package clock

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Time is a point on the global timeline in nanoseconds since the clock
// epoch. Device-local timestamps use the same unit on their own timeline.
type Time int64

// Clock is the source of global time. Now must be safe to call from any
// goroutine, must not block and must never return a smaller value than
// a previous call.
type Clock interface {
	Now() Time
}

// Monotonic is a clock backed by the runtime monotonic counter. The epoch is
// fixed when the clock is created and never re-based.
type Monotonic struct {
	epoch time.Time
}

// NewMonotonic returns a monotonic clock with the epoch set to the moment of
// the call.
func NewMonotonic() *Monotonic {
	return &Monotonic{epoch: time.Now()}
}

// Now returns the time elapsed since the epoch.
func (c *Monotonic) Now() Time {
	return Time(time.Since(c.epoch))
}

// Epoch returns wall time of the clock epoch.
func (c *Monotonic) Epoch() time.Time {
	return c.epoch
}

// Manual is a clock which only moves when told to. Used to drive the engine
// deterministically.
type Manual struct {
	now atomic.Int64
}

// NewManual returns manual clock set to start.
func NewManual(start Time) *Manual {
	var c Manual
	c.now.Store(int64(start))
	return &c
}

// Now returns current manual time.
func (c *Manual) Now() Time {
	return Time(c.now.Load())
}

// Advance moves the clock forward. Negative values are ignored.
func (c *Manual) Advance(d time.Duration) Time {
	if d < 0 {
		return c.Now()
	}
	return Time(c.now.Add(int64(d)))
}

// Set moves the clock to t if t is not in the past.
func (c *Manual) Set(t Time) {
	for {
		cur := c.now.Load()
		if int64(t) <= cur {
			return
		}
		if c.now.CompareAndSwap(cur, int64(t)) {
			return
		}
	}
}

// Add returns t shifted by d.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d)
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t - u)
}

// Before reports whether t is before u.
func (t Time) Before(u Time) bool {
	return t < u
}

// Duration returns t as duration since the epoch.
func (t Time) Duration() time.Duration {
	return time.Duration(t)
}

func (t Time) String() string {
	return fmt.Sprintf("T+%v", time.Duration(t))
}

// FramesToDuration returns the duration of frames at sample rate.
func FramesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	sec := frames / int64(sampleRate)
	rem := frames % int64(sampleRate)
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/int64(sampleRate))
}

// DurationToFrames returns number of whole frames in d at sample rate.
func DurationToFrames(d time.Duration, sampleRate int) int64 {
	return int64(math.Floor(float64(d) * float64(sampleRate) / float64(time.Second)))
}
