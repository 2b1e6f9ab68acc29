package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/clocksync/clock"
)

func TestMonotonic(t *testing.T) {
	c := clock.NewMonotonic()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := c.Now()
			for j := 0; j < 1000; j++ {
				now := c.Now()
				assert.GreaterOrEqual(t, int64(now), int64(prev))
				prev = now
			}
		}()
	}
	wg.Wait()
	assert.False(t, c.Epoch().IsZero())
}

func TestManual(t *testing.T) {
	c := clock.NewManual(100)
	assert.Equal(t, clock.Time(100), c.Now())

	assert.Equal(t, clock.Time(100+int64(time.Millisecond)), c.Advance(time.Millisecond))
	c.Advance(-time.Second)
	assert.Equal(t, clock.Time(100+int64(time.Millisecond)), c.Now())

	c.Set(50)
	assert.Equal(t, clock.Time(100+int64(time.Millisecond)), c.Now(), "clock never goes back")
	c.Set(clock.Time(time.Second))
	assert.Equal(t, clock.Time(time.Second), c.Now())
}

func TestTime(t *testing.T) {
	a := clock.Time(time.Second)
	b := a.Add(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, b.Sub(a))
	assert.True(t, a.Before(b))
	assert.Equal(t, time.Second, a.Duration())
	assert.Equal(t, "T+1s", a.String())
}

func TestFrames(t *testing.T) {
	tests := []struct {
		frames     int64
		sampleRate int
		expected   time.Duration
	}{
		{frames: 48000, sampleRate: 48000, expected: time.Second},
		{frames: 480, sampleRate: 48000, expected: 10 * time.Millisecond},
		{frames: 1, sampleRate: 44100, expected: 22675 * time.Nanosecond},
		{frames: 480000, sampleRate: 48000, expected: 10 * time.Second},
		{frames: 10, sampleRate: 0, expected: 0},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, clock.FramesToDuration(test.frames, test.sampleRate))
	}
	assert.Equal(t, int64(48000), clock.DurationToFrames(time.Second, 48000))
	assert.Equal(t, int64(441), clock.DurationToFrames(10*time.Millisecond, 44100))
}
