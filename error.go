package clocksync

import (
	"errors"
	"fmt"

	"pipelined.dev/clocksync/drift"
	"pipelined.dev/clocksync/midi"
	"pipelined.dev/clocksync/ring"
)

var (
	// ErrRegistryFull is returned when maximum number of streams is
	// registered.
	ErrRegistryFull = errors.New("registry full")
	// ErrStreamNotFound is returned for unknown or unregistered stream.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrQueueFull is returned when producer pushes into full queue. Item
	// is dropped.
	ErrQueueFull = ring.ErrFull
	// ErrClockNotConverged is returned when drift estimate doesn't have
	// enough data yet. It's a state, not a failure.
	ErrClockNotConverged = drift.ErrNotConverged
	// ErrMidiTimestampOutOfRange is returned when scheduled events contain
	// late ones.
	ErrMidiTimestampOutOfRange = midi.ErrLate
	// ErrInvalidConfig is returned when stream or engine configuration is
	// not valid.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrKindMismatch is returned when operation doesn't match the stream
	// kind.
	ErrKindMismatch = errors.New("stream kind mismatch")
	// ErrRunning is returned when engine is already running.
	ErrRunning = errors.New("engine is already running")
)

// StreamError is returned when processing of a single stream failed. Other
// streams are not affected.
type StreamError struct {
	ID  StreamID
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %v: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// streamErrors collects errors of multiple streams during a single pass.
type streamErrors []error

func (e streamErrors) add(id StreamID, err error) streamErrors {
	if err == nil {
		return e
	}
	return append(e, &StreamError{ID: id, Err: err})
}

// ret returns untyped nil if error list is empty.
func (e streamErrors) ret() error {
	if len(e) > 0 {
		return errors.Join(e...)
	}
	return nil
}
