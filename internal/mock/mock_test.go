package mock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/internal/mock"
)

const ms = clock.Time(time.Millisecond)

func TestDevice(t *testing.T) {
	d := mock.Device{SampleRate: 48000, Channels: 2, Rate: 1.0001, Offset: 5 * ms}

	b, at := d.Next(4800)
	require.Equal(t, 2, b.Channels())
	assert.Equal(t, clock.Time(0), b.Local)
	assert.Equal(t, 48000, b.SampleRate)
	assert.Equal(t, 0.0, b.Data[0][0])
	assert.Equal(t, 4799.0, b.Data[1][4799])
	assert.InDelta(t, float64(105010*clock.Time(time.Microsecond)), float64(at), 1)

	b, at = d.Next(4800)
	assert.Equal(t, 100*ms, b.Local)
	assert.Equal(t, 4800.0, b.Data[0][0])
	assert.InDelta(t, float64(205020*clock.Time(time.Microsecond)), float64(at), 1)

	blocks, frames := d.Count()
	assert.Equal(t, 2, blocks)
	assert.Equal(t, 9600, frames)

	d.Skip(480)
	b, _ = d.Next(10)
	assert.Equal(t, 210*ms, b.Local)
	assert.Equal(t, 10080.0, b.Data[0][0])
	assert.Equal(t, 480, d.Skipped)

	d.Reset()
	assert.True(t, d.Resetted)
	b, _ = d.Next(1)
	assert.Equal(t, clock.Time(0), b.Local)
}

func TestDeviceValue(t *testing.T) {
	d := mock.Device{SampleRate: 44100, Value: 0.5}
	b, at := d.Next(441)
	require.Equal(t, 1, b.Channels())
	for _, v := range b.Data[0] {
		assert.Equal(t, 0.5, v)
	}
	assert.Equal(t, 10*ms, at)
	assert.Equal(t, 20*ms, d.Global(20*ms))
}

func TestSink(t *testing.T) {
	d := mock.Device{SampleRate: 48000}
	var s mock.Sink
	for i := 0; i < 3; i++ {
		b, _ := d.Next(100)
		b.Global = b.Local + ms
		s.Write(b)
	}
	blocks, frames := s.Count()
	assert.Equal(t, 3, blocks)
	assert.Equal(t, 300, frames)
	require.Equal(t, 300, s.Buffer().Size())
	assert.Equal(t, 299.0, s.Buffer()[0][299])
	assert.Equal(t, clock.Time(clock.FramesToDuration(200, 48000))+ms, s.Last.Global)
	assert.Nil(t, s.Last.Data)

	discard := mock.Sink{Discard: true}
	b, _ := d.Next(10)
	discard.Write(b)
	assert.Nil(t, discard.Buffer())
	_, frames = discard.Count()
	assert.Equal(t, 10, frames)

	s.Reset()
	assert.Nil(t, s.Buffer())
	blocks, _ = s.Count()
	assert.Equal(t, 0, blocks)
}
