// Package metric publishes per-stream counters with expvar.
package metric

import (
	"expvar"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

const streamsLabel = "clocksync.streams"

const (
	// PushedCounter counts items accepted by the stream queue.
	PushedCounter = "Pushed"
	// DroppedCounter counts items rejected because the queue was full.
	DroppedCounter = "Dropped"
	// UnderrunCounter counts polls which found no data.
	UnderrunCounter = "Underruns"
	// LateCounter counts MIDI events reported late.
	LateCounter = "Late"
	// RejectedCounter counts correlation pairs rejected by estimator.
	RejectedCounter = "Rejected"
	// FrameCounter counts audio frames produced by compensator.
	FrameCounter = "Frames"
	// LatencyCounter is the time between push and processing of the
	// latest item.
	LatencyCounter = "Latency"
	// RateCounter is the current drift rate estimate.
	RateCounter = "Rate"
)

var (
	streams = expvar.NewMap(streamsLabel)

	counters = []string{
		PushedCounter,
		DroppedCounter,
		UnderrunCounter,
		LateCounter,
		RejectedCounter,
		FrameCounter,
		LatencyCounter,
		RateCounter,
	}
)

// Stream holds counters of a single stream. All methods are safe for
// concurrent use and no-op on nil receiver.
type Stream struct {
	key       string
	vars      *expvar.Map
	pushed    *expvar.Int
	dropped   *expvar.Int
	underruns *expvar.Int
	late      *expvar.Int
	rejected  *expvar.Int
	frames    *expvar.Int
	latency   *duration
	rate      *expvar.Float
	released  atomic.Bool
}

// New creates and publishes counters for the stream key. Counters of
// released stream with the same key are replaced.
func New(key string) *Stream {
	s := Stream{
		key:       key,
		vars:      new(expvar.Map).Init(),
		pushed:    new(expvar.Int),
		dropped:   new(expvar.Int),
		underruns: new(expvar.Int),
		late:      new(expvar.Int),
		rejected:  new(expvar.Int),
		frames:    new(expvar.Int),
		latency:   &duration{},
		rate:      new(expvar.Float),
	}
	s.rate.Set(1)
	s.vars.Set(PushedCounter, s.pushed)
	s.vars.Set(DroppedCounter, s.dropped)
	s.vars.Set(UnderrunCounter, s.underruns)
	s.vars.Set(LateCounter, s.late)
	s.vars.Set(RejectedCounter, s.rejected)
	s.vars.Set(FrameCounter, s.frames)
	s.vars.Set(LatencyCounter, s.latency)
	s.vars.Set(RateCounter, s.rate)
	streams.Set(key, s.vars)
	return &s
}

// Release removes stream counters from published variables.
func (s *Stream) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	streams.Delete(s.key)
}

// Pushed counts accepted item.
func (s *Stream) Pushed() {
	if s != nil {
		s.pushed.Add(1)
	}
}

// Dropped counts n rejected items.
func (s *Stream) Dropped(n int64) {
	if s != nil {
		s.dropped.Add(n)
	}
}

// Underrun counts poll without data.
func (s *Stream) Underrun() {
	if s != nil {
		s.underruns.Add(1)
	}
}

// Late counts n late events.
func (s *Stream) Late(n int64) {
	if s != nil {
		s.late.Add(n)
	}
}

// Rejected counts rejected correlation pair.
func (s *Stream) Rejected() {
	if s != nil {
		s.rejected.Add(1)
	}
}

// Frames counts produced frames.
func (s *Stream) Frames(n int64) {
	if s != nil {
		s.frames.Add(n)
	}
}

// Latency sets latency of the latest processed item.
func (s *Stream) Latency(d time.Duration) {
	if s != nil {
		s.latency.set(d)
	}
}

// Rate sets the current rate estimate.
func (s *Stream) Rate(r float64) {
	if s != nil {
		s.rate.Set(r)
	}
}

// Values returns formatted counter values.
func (s *Stream) Values() map[string]string {
	if s == nil {
		return nil
	}
	return values(s.vars)
}

// Get returns counter values of the published stream key. Nil is returned
// if key is not published.
func Get(key string) map[string]string {
	if vars, ok := streams.Get(key).(*expvar.Map); ok {
		return values(vars)
	}
	return nil
}

// Keys returns sorted keys of all published streams.
func Keys() []string {
	var keys []string
	streams.Do(func(kv expvar.KeyValue) {
		keys = append(keys, kv.Key)
	})
	sort.Strings(keys)
	return keys
}

// GetAll returns counters for all published streams.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	streams.Do(func(kv expvar.KeyValue) {
		if vars, ok := kv.Value.(*expvar.Map); ok {
			m[kv.Key] = values(vars)
		}
	})
	return m
}

func values(vars *expvar.Map) map[string]string {
	m := make(map[string]string, len(counters))
	for _, counter := range counters {
		if v := vars.Get(counter); v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
