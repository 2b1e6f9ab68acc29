/*
Package ring provides a fixed-capacity single-producer/single-consumer queue
used to move data across the realtime boundary.

Exactly one goroutine may call Push and exactly one goroutine may call Pop at
any time. Neither call blocks and Push never allocates: items are copied into
pre-allocated slots and the slot is cleared when the item is popped, so the
consumer becomes the sole owner of whatever the item references.
*/
package ring

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned when the item cannot be pushed because the queue has
// no free slots. The caller decides what to drop.
var ErrFull = errors.New("queue full")

const cacheLine = 64

// Queue is a lock-free SPSC ring buffer.
type Queue[T any] struct {
	// tail is the number of items pushed so far. Written by producer only.
	tail atomic.Uint64
	_    [cacheLine - 8]byte
	// head is the number of items popped so far. Written by consumer only.
	head atomic.Uint64
	_    [cacheLine - 8]byte

	slots    []T
	mask     uint64
	capacity uint64
}

// New returns a queue which holds at most capacity items. Capacity must be
// positive.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	size := nextPow2(uint64(capacity))
	return &Queue[T]{
		slots:    make([]T, size),
		mask:     size - 1,
		capacity: uint64(capacity),
	}
}

// Push appends the item to the queue. ErrFull is returned if queue is full.
func (q *Queue[T]) Push(v T) error {
	tail := q.tail.Load()
	if tail-q.head.Load() >= q.capacity {
		return ErrFull
	}
	q.slots[tail&q.mask] = v
	q.tail.Store(tail + 1)
	return nil
}

// Pop removes the oldest item from the queue. False is returned if queue is
// empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	i := head & q.mask
	v := q.slots[i]
	q.slots[i] = zero
	q.head.Store(head + 1)
	return v, true
}

// Len returns number of queued items. The value is a snapshot and may be
// outdated by the time it's used.
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns capacity of the queue.
func (q *Queue[T]) Cap() int {
	return int(q.capacity)
}

// Drain pops all items currently in the queue and passes them to fn in
// order. It returns number of drained items. Only the consumer may call it.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := q.Pop()
		if !ok {
			return n
		}
		if fn != nil {
			fn(v)
		}
		n++
	}
}

func nextPow2(v uint64) uint64 {
	n := uint64(1)
	for n < v {
		n <<= 1
	}
	return n
}
