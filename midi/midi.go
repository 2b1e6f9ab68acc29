// Package midi aligns timestamped MIDI events with the global clock and
// schedules them into audio blocks.
package midi

import (
	"errors"
	"fmt"
	"math"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/drift"
)

var (
	// ErrLate is returned when event global time is before the horizon
	// start.
	ErrLate = errors.New("midi timestamp out of range")
	// ErrDeferred is returned when event global time is at or after the
	// horizon end.
	ErrDeferred = errors.New("midi timestamp beyond horizon")
)

// Event is a MIDI message with device-local timestamp.
type Event struct {
	Message gomidi.Message
	Local   clock.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%v@%v", e.Message, e.Local)
}

// Scheduled is an event with resolved global time. Offset is set when event
// is returned for a horizon.
type Scheduled struct {
	Event
	Global clock.Time
	// Offset is the sample index within the horizon block.
	Offset int
	// Late is set when event should have been played before the horizon.
	Late bool
	// LowConfidence is set when global time was resolved without a
	// converged or fresh estimate.
	LowConfidence bool
}

// Resolve maps event local time into global time with provided estimate.
// Estimate which has not converged maps with rate 1 and the last known
// offset, and the result is marked low confidence.
func Resolve(e Event, est drift.Estimate) Scheduled {
	if !est.Valid {
		est.Rate = 1
	}
	return Scheduled{
		Event:         e,
		Global:        est.Global(e.Local),
		LowConfidence: !est.Valid || est.Stale,
	}
}

// Horizon is a range of global time covered by one output audio block.
type Horizon struct {
	Start      clock.Time
	Frames     int
	SampleRate int
}

// End returns global time right after the last frame of horizon.
func (h Horizon) End() clock.Time {
	return h.Start.Add(clock.FramesToDuration(int64(h.Frames), h.SampleRate))
}

// Contains returns true if global time is within horizon.
func (h Horizon) Contains(t clock.Time) bool {
	return !t.Before(h.Start) && t.Before(h.End())
}

// OffsetIn returns sample offset of global time within horizon. Offset is
// always within [0, Frames). ErrLate is returned with offset 0 for times
// before horizon start and ErrDeferred for times at or after its end.
func OffsetIn(t clock.Time, h Horizon) (int, error) {
	if t.Before(h.Start) {
		return 0, ErrLate
	}
	if h.Frames <= 0 || !t.Before(h.End()) {
		return 0, ErrDeferred
	}
	offset := int(math.Floor(float64(t.Sub(h.Start)) * float64(h.SampleRate) / float64(time.Second)))
	if offset >= h.Frames {
		offset = h.Frames - 1
	}
	return offset, nil
}
