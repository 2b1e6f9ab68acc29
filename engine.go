package clocksync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/drift"
	"pipelined.dev/clocksync/internal/runtime"
	"pipelined.dev/clocksync/log"
	"pipelined.dev/clocksync/metric"
	"pipelined.dev/clocksync/midi"
	"pipelined.dev/clocksync/mutable"
	"pipelined.dev/clocksync/resample"
	"pipelined.dev/clocksync/signal"
	"pipelined.dev/clocksync/wav"
)

// registry is an immutable snapshot of open streams.
type registry map[StreamID]processor

// Engine synchronizes registered streams with the global clock.
type Engine struct {
	clock      clock.Clock
	logger     log.Logger
	maxStreams int
	interval   time.Duration
	metric     bool

	// streams is read by producers and consumers without locks.
	streams atomic.Pointer[registry]

	// mu guards registry writes.
	mu sync.Mutex
	// all contains open streams and closed ones waiting for release.
	all map[StreamID]processor

	pusher  *mutable.Pusher
	running atomic.Bool

	// passMu serializes orchestration passes.
	passMu sync.Mutex
	pass   []processor
}

// NewEngine returns new engine configured with options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := Engine{
		clock:      clock.NewMonotonic(),
		logger:     log.GetLogger(),
		maxStreams: DefaultMaxStreams,
		interval:   DefaultInterval,
		metric:     true,
		all:        make(map[StreamID]processor),
		pusher:     mutable.NewPusher(),
	}
	for _, option := range opts {
		if err := option(&e); err != nil {
			return nil, err
		}
	}
	e.streams.Store(&registry{})
	return &e, nil
}

// Now returns the global time.
func (e *Engine) Now() clock.Time {
	return e.clock.Now()
}

// RegisterStream adds new stream of provided kind. Zero config values are
// replaced with defaults.
func (e *Engine) RegisterStream(kind Kind, cfg StreamConfig) (StreamID, error) {
	if err := cfg.Validate(kind); err != nil {
		return StreamID{}, err
	}
	cfg = cfg.WithDefaults()

	e.mu.Lock()
	defer e.mu.Unlock()
	current := *e.streams.Load()
	if len(current) >= e.maxStreams {
		return StreamID{}, fmt.Errorf("%w: %d streams", ErrRegistryFull, len(current))
	}

	id := newStreamID()
	var m *metric.Stream
	if e.metric {
		m = metric.New(id.String())
	}
	s := newStream(id, kind, cfg, e.logger, m)
	var p processor
	switch kind {
	case Audio:
		p = newAudioStream(s)
	case Midi:
		p = newMidiStream(s)
	}

	next := make(registry, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[id] = p
	e.all[id] = p
	e.streams.Store(&next)
	s.logger.WithFields(logrus.Fields{
		"capacity":    cfg.RingCapacity,
		"window":      cfg.WindowSize,
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
	}).Info("stream registered")
	return id, nil
}

// UnregisterStream closes the stream. Producers and consumers get
// ErrStreamNotFound right away. Queued items are drained and stream state
// is released during the next pass. Unknown ids are ignored.
func (e *Engine) UnregisterStream(id StreamID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current := *e.streams.Load()
	p, ok := current[id]
	if !ok {
		return
	}
	s := p.base()
	s.closed.Store(true)

	next := make(registry, len(current))
	for k, v := range current {
		if k != id {
			next[k] = v
		}
	}
	e.streams.Store(&next)
	e.pusher.Put(s.Mutate(func() error {
		discarded := p.release()
		e.mu.Lock()
		delete(e.all, id)
		e.mu.Unlock()
		s.logger.WithField("discarded", discarded).Info("stream unregistered")
		return nil
	}))
}

// lookup returns open stream.
func (e *Engine) lookup(id StreamID) (processor, error) {
	p, ok := (*e.streams.Load())[id]
	if !ok || p.base().closed.Load() {
		return nil, ErrStreamNotFound
	}
	return p, nil
}

func (e *Engine) audio(id StreamID) (*audioStream, error) {
	p, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s, ok := p.(*audioStream)
	if !ok {
		return nil, ErrKindMismatch
	}
	return s, nil
}

func (e *Engine) midi(id StreamID) (*midiStream, error) {
	p, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s, ok := p.(*midiStream)
	if !ok {
		return nil, ErrKindMismatch
	}
	return s, nil
}

// PushAudio enqueues block captured by the stream device. It never blocks
// and never allocates. The block is dropped if queue is full and
// ErrQueueFull is returned. Block must not be modified after the push.
func (e *Engine) PushAudio(id StreamID, b signal.Block) error {
	s, err := e.audio(id)
	if err != nil {
		return err
	}
	if b.IsEmpty() {
		return nil
	}
	return s.push(b, e.clock.Now())
}

// PushMidi enqueues event received from the stream device. It never
// blocks and never allocates. The event is dropped if queue is full and
// ErrQueueFull is returned.
func (e *Engine) PushMidi(id StreamID, ev midi.Event) error {
	s, err := e.midi(id)
	if err != nil {
		return err
	}
	return s.push(ev, e.clock.Now(), nil)
}

// PushMidiBytes enqueues raw bytes read from the stream device at local
// time. Chunks may end in the middle of a message, complete messages are
// split out during the pass and share the local time of the chunk that
// completed them. It never blocks and never allocates. Chunk must not be
// modified after the push. Empty chunks are ignored.
func (e *Engine) PushMidiBytes(id StreamID, chunk []byte, local clock.Time) error {
	s, err := e.midi(id)
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}
	return s.pushBytes(chunk, local, e.clock.Now())
}

// PollCorrectedAudio returns next corrected block. False is returned if
// there is no block ready, consumer should substitute silence.
func (e *Engine) PollCorrectedAudio(id StreamID) (signal.Block, bool, error) {
	s, err := e.audio(id)
	if err != nil {
		return signal.Block{}, false, err
	}
	b, ok := s.poll()
	return b, ok, nil
}

// PollScheduledMidi returns events scheduled into the horizon. Events
// after the horizon are kept for later polls. Late events are returned
// once with ErrMidiTimestampOutOfRange.
func (e *Engine) PollScheduledMidi(id StreamID, h midi.Horizon) ([]midi.Scheduled, error) {
	return e.AppendScheduledMidi(nil, id, h)
}

// AppendScheduledMidi is like PollScheduledMidi, but appends events to dst
// to avoid allocations.
func (e *Engine) AppendScheduledMidi(dst []midi.Scheduled, id StreamID, h midi.Horizon) ([]midi.Scheduled, error) {
	s, err := e.midi(id)
	if err != nil {
		return dst, err
	}
	return s.schedule(dst, h)
}

// DriftEstimate returns the latest estimate of the stream.
// ErrClockNotConverged is returned along with pass-through estimate until
// there is enough data.
func (e *Engine) DriftEstimate(id StreamID) (drift.Estimate, error) {
	p, err := e.lookup(id)
	if err != nil {
		return drift.Estimate{}, err
	}
	return p.base().estimate()
}

// SetCompensation changes compensation mode of the audio stream. Change is
// applied during the next pass.
func (e *Engine) SetCompensation(id StreamID, m resample.Mode) error {
	s, err := e.audio(id)
	if err != nil {
		return err
	}
	e.pusher.Put(s.Mutate(func() error {
		return s.setMode(m)
	}))
	return nil
}

// SetTap attaches tap which receives every corrected block of the audio
// stream. Engine owns the tap: it's closed when replaced, detached with nil
// or when the stream is unregistered. A tap which fails to write is closed
// and detached. Change is applied during the next pass.
func (e *Engine) SetTap(id StreamID, t *wav.Tap) error {
	s, err := e.audio(id)
	if err != nil {
		return err
	}
	e.pusher.Put(s.Mutate(func() error {
		return s.setTap(t)
	}))
	return nil
}

// Process executes a single orchestration pass: pending mutations are
// applied, queued input of every stream is processed and results are
// published. Errors of single streams are returned joined, they don't
// affect other streams.
func (e *Engine) Process() error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	// mutations are taken first, so every stream they target is listed
	ms := e.pusher.Take()
	e.mu.Lock()
	e.pass = e.pass[:0]
	for _, p := range e.all {
		e.pass = append(e.pass, p)
	}
	e.mu.Unlock()

	now := e.clock.Now()
	var errs streamErrors
	for i, p := range e.pass {
		e.pass[i] = nil
		s := p.base()
		errs = errs.add(s.id, ms.ApplyTo(s.Context))
		// closed stream waits for its release
		if s.closed.Load() {
			continue
		}
		errs = errs.add(s.id, p.process(now))
	}
	return errs.ret()
}

// Run starts orchestration in a separate goroutine. Passes are executed
// every interval and after mutations. Returned channel is closed when
// context is done.
func (e *Engine) Run(ctx context.Context) <-chan error {
	if !e.running.CompareAndSwap(false, true) {
		errc := make(chan error, 1)
		errc <- ErrRunning
		close(errc)
		return errc
	}
	pass := func() error {
		if err := e.Process(); err != nil {
			e.logger.WithError(err).Warn("pass failed")
		}
		return nil
	}
	l := runtime.Loop{
		Interval: e.interval,
		Wake:     e.pusher.Ready(),
		PassFunc: pass,
		StartFunc: func(context.Context) error {
			e.logger.WithField("interval", e.interval).Debug("engine started")
			return nil
		},
		FlushFunc: func(context.Context) error {
			defer e.running.Store(false)
			e.logger.Debug("engine stopped")
			return pass()
		},
	}
	return l.Run(ctx)
}

// Running returns true if engine is started with Run.
func (e *Engine) Running() bool {
	return e.running.Load()
}
