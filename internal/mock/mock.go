// Package mock provides simulated devices to drive the engine in tests.
package mock

import (
	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/signal"
)

// Device simulates an audio device whose crystal runs at Rate relative to
// the global clock. Samples form a ramp so resampled output is easy to
// verify. Device is not thread-safe.
type Device struct {
	counter
	SampleRate int
	Channels   int
	// Rate is the global time elapsed per unit of device-local time. Zero
	// means no drift.
	Rate float64
	// Offset is the global time of local zero.
	Offset clock.Time
	// Value overrides the ramp with a constant when not zero.
	Value float64
	Hooks
}

// Next returns block of frames and the global time it arrives at. Arrival
// is the global time of the end of the block.
func (d *Device) Next(frames int) (signal.Block, clock.Time) {
	channels := d.Channels
	if channels <= 0 {
		channels = 1
	}
	b := signal.NewBlock(channels, frames, d.SampleRate)
	b.Local = d.local(d.samples)
	for i := range b.Data {
		for j := range b.Data[i] {
			if d.Value != 0 {
				b.Data[i][j] = d.Value
			} else {
				b.Data[i][j] = float64(d.samples + j)
			}
		}
	}
	d.advance(frames)
	return b, d.Global(d.local(d.samples))
}

// Skip advances device time without producing a block. Used to simulate
// frames lost by the driver.
func (d *Device) Skip(frames int) {
	d.Skipped += frames
	d.samples += frames
}

// Global maps device-local time to global time.
func (d *Device) Global(local clock.Time) clock.Time {
	if d.Rate == 0 || d.Rate == 1 {
		return d.Offset + local
	}
	return d.Offset + clock.Time(float64(local)*d.Rate)
}

// Reset rewinds the device to local zero.
func (d *Device) Reset() {
	d.Resetted = true
	d.Skipped = 0
	d.reset()
}

func (d *Device) local(frames int) clock.Time {
	return clock.Time(clock.FramesToDuration(int64(frames), d.SampleRate))
}

// Sink collects corrected blocks polled from the engine.
// Buffer is not thread-safe, so should not be checked while engine is running.
type Sink struct {
	counter
	buffer signal.Float64
	// Discard drops samples and only counts them.
	Discard bool
	// Last is the last received block without data.
	Last signal.Block
}

// Write appends block to the sink buffer.
func (s *Sink) Write(b signal.Block) {
	if !s.Discard {
		s.buffer = s.buffer.Append(b.Data)
	}
	s.Last = signal.Block{SampleRate: b.SampleRate, Local: b.Local, Global: b.Global}
	s.advance(b.Frames())
}

// Buffer returns sink's buffer.
func (s *Sink) Buffer() signal.Float64 {
	return s.buffer
}

// Reset clears the buffer and counters.
func (s *Sink) Reset() {
	s.buffer = nil
	s.Last = signal.Block{}
	s.reset()
}

// Hooks records lifecycle calls made on a mock.
type Hooks struct {
	Resetted bool
	Skipped  int
}

// counter counts blocks and frames.
type counter struct {
	messages int
	samples  int
}

func (c *counter) reset() {
	c.messages, c.samples = 0, 0
}

func (c *counter) advance(size int) {
	c.messages++
	c.samples = c.samples + size
}

// Count returns blocks and frames metrics.
func (c *counter) Count() (int, int) {
	return c.messages, c.samples
}
