package clocksync_test

import (
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"pipelined.dev/clocksync"
	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/log"
	"pipelined.dev/clocksync/midi"
)

// This example aligns MIDI events of a device which clock started one
// second after the global clock.
func Example() {
	clk := clock.NewManual(0)
	e, err := clocksync.NewEngine(
		clocksync.WithClock(clk),
		clocksync.WithLogger(log.Discard()),
		clocksync.WithMetric(false),
	)
	if err != nil {
		panic(err)
	}
	id, err := e.RegisterStream(clocksync.Midi, clocksync.StreamConfig{
		MinSamples: 2,
		MinSpan:    100 * time.Millisecond,
	})
	if err != nil {
		panic(err)
	}

	// driver callback pushes events as they arrive
	for i := 0; i < 4; i++ {
		local := clock.Time(i)*clock.Time(100*time.Millisecond) + clock.Time(time.Microsecond)
		clk.Set(local + clock.Time(time.Second))
		if err := e.PushMidi(id, midi.Event{Message: gomidi.NoteOn(0, uint8(60+i), 100), Local: local}); err != nil {
			panic(err)
		}
	}

	// orchestration pass
	if err := e.Process(); err != nil {
		panic(err)
	}
	est, err := e.DriftEstimate(id)
	if err != nil {
		panic(err)
	}
	fmt.Printf("rate: %.4f offset: %v\n", est.Rate, time.Duration(est.Offset).Round(time.Millisecond))

	// audio callback renders one second block
	events, err := e.PollScheduledMidi(id, midi.Horizon{
		Start:      clock.Time(time.Second),
		Frames:     48000,
		SampleRate: 48000,
	})
	if err != nil {
		panic(err)
	}
	for _, ev := range events {
		var ch, key, vel uint8
		ev.Message.GetNoteOn(&ch, &key, &vel)
		fmt.Printf("key: %d offset: %d\n", key, ev.Offset)
	}

	// Output:
	// rate: 1.0000 offset: 1s
	// key: 60 offset: 0
	// key: 61 offset: 4800
	// key: 62 offset: 9600
	// key: 63 offset: 14400
}
