package ring_test

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/clocksync/ring"
)

func TestFIFO(t *testing.T) {
	tests := []struct {
		capacity int
		pushes   int
	}{
		{capacity: 1, pushes: 1},
		{capacity: 3, pushes: 3},
		{capacity: 4, pushes: 2},
		{capacity: 100, pushes: 100},
	}
	for _, test := range tests {
		q := ring.New[int](test.capacity)
		assert.Equal(t, test.capacity, q.Cap())
		for i := 0; i < test.pushes; i++ {
			require.NoError(t, q.Push(i))
		}
		assert.Equal(t, test.pushes, q.Len())
		for i := 0; i < test.pushes; i++ {
			v, ok := q.Pop()
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
		_, ok := q.Pop()
		assert.False(t, ok)
	}
}

func TestOverflow(t *testing.T) {
	q := ring.New[string](4)
	items := []string{"a", "b", "c", "d", "e"}
	var errs []error
	for _, item := range items {
		errs = append(errs, q.Push(item))
	}
	assert.Equal(t, []error{nil, nil, nil, nil, ring.ErrFull}, errs)

	// full push doesn't corrupt state
	assert.Equal(t, 4, q.Len())
	var popped []string
	q.Drain(func(s string) { popped = append(popped, s) })
	assert.Equal(t, items[:4], popped)

	// queue is usable after draining
	require.NoError(t, q.Push("f"))
	assert.Equal(t, 1, q.Len())
	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "f", v)
}

func TestWrapAround(t *testing.T) {
	q := ring.New[int](3)
	next := 0
	expected := 0
	for round := 0; round < 50; round++ {
		for q.Push(next) == nil {
			next++
		}
		for i := 0; i < 2; i++ {
			v, ok := q.Pop()
			require.True(t, ok)
			assert.Equal(t, expected, v)
			expected++
		}
	}
}

func TestPopClearsSlot(t *testing.T) {
	q := ring.New[[]float64](2)
	require.NoError(t, q.Push([]float64{1, 2}))
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, v)
	assert.Zero(t, q.Len())
}

func TestConcurrent(t *testing.T) {
	const total = 100000
	q := ring.New[int](64)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if q.Push(i) != nil {
				runtime.Gosched()
				continue
			}
			i++
		}
	}()
	var received []int
	go func() {
		defer wg.Done()
		for len(received) < total {
			v, ok := q.Pop()
			if !ok {
				runtime.Gosched()
				continue
			}
			received = append(received, v)
		}
	}()
	wg.Wait()
	require.Len(t, received, total)
	for i, v := range received {
		if v != i {
			t.Fatalf("out of order at %d: %d", i, v)
		}
	}
}

func TestNewPanics(t *testing.T) {
	assert.Panics(t, func() { ring.New[int](0) })
}

func BenchmarkPushPop(b *testing.B) {
	q := ring.New[int](1024)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = q.Push(i)
		_, _ = q.Pop()
	}
}
