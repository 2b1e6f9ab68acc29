package midi_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/drift"
	"pipelined.dev/clocksync/midi"
)

const ms = clock.Time(time.Millisecond)

func TestResolve(t *testing.T) {
	event := midi.Event{Message: gomidi.NoteOn(0, 60, 100), Local: 100 * ms}
	tests := []struct {
		desc          string
		est           drift.Estimate
		global        clock.Time
		lowConfidence bool
	}{
		{
			desc:          "no estimate",
			est:           drift.Estimate{},
			global:        100 * ms,
			lowConfidence: true,
		},
		{
			desc:          "not converged",
			est:           drift.PassThrough(5 * ms),
			global:        105 * ms,
			lowConfidence: true,
		},
		{
			desc:   "converged",
			est:    drift.Affine(5*ms, 1),
			global: 105 * ms,
		},
		{
			desc: "stale",
			est: func() drift.Estimate {
				est := drift.Affine(5*ms, 2)
				est.Stale = true
				return est
			}(),
			global:        205 * ms,
			lowConfidence: true,
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			s := midi.Resolve(event, test.est)
			assert.Equal(t, event, s.Event)
			assert.Equal(t, test.global, s.Global)
			assert.Equal(t, test.lowConfidence, s.LowConfidence)
			assert.False(t, s.Late)
		})
	}
}

func TestOffsetIn(t *testing.T) {
	h := midi.Horizon{Start: clock.Time(time.Second), Frames: 480, SampleRate: 48000}
	assert.Equal(t, clock.Time(time.Second+10*time.Millisecond), h.End())
	tests := []struct {
		desc   string
		t      clock.Time
		offset int
		err    error
	}{
		{desc: "start", t: h.Start, offset: 0},
		{desc: "one frame", t: h.Start + 20834, offset: 1},
		{desc: "just below one frame", t: h.Start + 20833, offset: 0},
		{desc: "half", t: h.Start + 5*ms, offset: 240},
		{desc: "last", t: h.End() - 1, offset: 479},
		{desc: "end", t: h.End(), err: midi.ErrDeferred},
		{desc: "late", t: h.Start - 1, err: midi.ErrLate},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			offset, err := midi.OffsetIn(test.t, h)
			assert.ErrorIs(t, err, test.err)
			assert.Equal(t, test.offset, offset)
			if test.err == nil {
				assert.True(t, h.Contains(test.t))
			}
		})
	}
	_, err := midi.OffsetIn(h.Start, midi.Horizon{Start: h.Start, SampleRate: 48000})
	assert.ErrorIs(t, err, midi.ErrDeferred)
}

func TestScheduler(t *testing.T) {
	note := func(key uint8, global clock.Time) midi.Scheduled {
		return midi.Scheduled{
			Event:  midi.Event{Message: gomidi.NoteOn(0, key, 100)},
			Global: global,
		}
	}
	var s midi.Scheduler
	s.Add(note(1, 15*ms))
	s.Add(note(2, 5*ms))
	s.Add(note(3, 2*ms))
	s.Add(note(4, 5*ms))
	s.Add(note(5, 25*ms))
	s.Add(note(6, 11*ms))
	assert.Equal(t, 6, s.Len())

	h := midi.Horizon{Start: 0, Frames: 480, SampleRate: 48000}
	events, err := s.Append(nil, h)
	require.NoError(t, err)
	require.Len(t, events, 3)
	keys := func(events []midi.Scheduled) []uint8 {
		var result []uint8
		for _, e := range events {
			var ch, key, vel uint8
			require.True(t, e.Message.GetNoteOn(&ch, &key, &vel))
			result = append(result, key)
		}
		return result
	}
	assert.Equal(t, []uint8{3, 2, 4}, keys(events))
	assert.Equal(t, []int{96, 240, 240}, []int{events[0].Offset, events[1].Offset, events[2].Offset})
	assert.Equal(t, 3, s.Len())

	// next horizon starts later than one of pending events
	h.Start = 12 * ms
	events, err = s.Append(events[:0], h)
	assert.ErrorIs(t, err, midi.ErrLate)
	require.Len(t, events, 2)
	assert.Equal(t, []uint8{6, 1}, keys(events))
	assert.True(t, events[0].Late)
	assert.Equal(t, 0, events[0].Offset)
	assert.False(t, events[1].Late)
	assert.Equal(t, 144, events[1].Offset)
	assert.Equal(t, 1, s.Len())

	// late events are reported once
	h.Start = 22 * ms
	events, err = s.Append(nil, h)
	require.NoError(t, err)
	assert.Equal(t, []uint8{5}, keys(events))
	assert.Equal(t, 0, s.Len())

	s.Add(note(7, clock.Time(time.Hour)))
	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerDeterministic(t *testing.T) {
	est := drift.Affine(3*ms, 1.0001)
	h := midi.Horizon{Start: 0, Frames: 4800, SampleRate: 48000}
	var results [2][]midi.Scheduled
	for i := range results {
		var s midi.Scheduler
		for j := 0; j < 10; j++ {
			s.Add(midi.Resolve(midi.Event{Message: gomidi.TimingClock(), Local: clock.Time(j) * 9 * ms}, est))
		}
		var err error
		results[i], err = s.Append(nil, h)
		require.NoError(t, err)
	}
	assert.Len(t, results[0], 10)
	assert.Equal(t, results[0], results[1])
}
