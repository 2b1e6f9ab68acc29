package clocksync

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	gomidi "gitlab.com/gomidi/midi/v2"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/drift"
	"pipelined.dev/clocksync/log"
	"pipelined.dev/clocksync/metric"
	"pipelined.dev/clocksync/midi"
	"pipelined.dev/clocksync/mutable"
	"pipelined.dev/clocksync/resample"
	"pipelined.dev/clocksync/ring"
	"pipelined.dev/clocksync/signal"
	"pipelined.dev/clocksync/wav"
)

// processor is implemented by every stream kind. All methods are called
// from orchestration only.
type processor interface {
	base() *stream
	// process drains inbound queue and publishes results.
	process(now clock.Time) error
	// release discards queued input and resets the stream state. It
	// returns number of discarded items.
	release() int
}

// published is the estimate shared with readers.
type published struct {
	est drift.Estimate
	err error
}

// stream is the state shared by all stream kinds.
type stream struct {
	mutable.Context
	id     StreamID
	kind   Kind
	cfg    StreamConfig
	logger log.Logger
	metric *metric.Stream

	closed  atomic.Bool
	dropped atomic.Int64
	latest  atomic.Pointer[published]

	// orchestration owned
	estimator *drift.Estimator
	pushes    int
	reported  int64
	converged bool
	stale     bool
}

func newStream(id StreamID, kind Kind, cfg StreamConfig, logger log.Logger, m *metric.Stream) *stream {
	s := stream{
		Context:   mutable.Context(id),
		id:        id,
		kind:      kind,
		cfg:       cfg,
		metric:    m,
		estimator: drift.New(cfg.drift()),
		logger: logger.WithFields(logrus.Fields{
			"stream": id,
			"kind":   kind,
		}),
	}
	s.latest.Store(&published{est: drift.Estimate{Rate: 1}, err: ErrClockNotConverged})
	return &s
}

func (s *stream) base() *stream {
	return s
}

// estimate returns the latest published estimate.
func (s *stream) estimate() (drift.Estimate, error) {
	p := s.latest.Load()
	return p.est, p.err
}

// correlate feeds pair into the estimator once per correlation interval.
func (s *stream) correlate(p drift.Pair) {
	s.pushes++
	if s.pushes%s.cfg.CorrelationInterval != 0 {
		return
	}
	if err := s.estimator.Add(p); err != nil {
		s.metric.Rejected()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"local":  p.Local,
			"global": p.Global,
		}).Debug("correlation pair rejected")
	}
}

// refresh computes and publishes the estimate. State transitions are
// logged.
func (s *stream) refresh(now clock.Time) (drift.Estimate, error) {
	est, err := s.estimator.Estimate(now)
	s.latest.Store(&published{est: est, err: err})
	s.metric.Rate(est.Rate)

	if est.Valid != s.converged {
		s.converged = est.Valid
		l := s.logger.WithFields(logrus.Fields{
			"rate":    est.Rate,
			"offset":  clock.Time(est.Offset),
			"samples": est.Samples,
		})
		if est.Valid {
			l.Info("clock converged")
		} else {
			l.Warn("clock lost convergence")
		}
	}
	if stale := est.Valid && est.Stale; stale != s.stale {
		s.stale = stale
		if stale {
			s.logger.WithField("updated", est.Updated).Warn("clock estimate is stale")
		} else {
			s.logger.Info("clock estimate is fresh")
		}
	}
	if dropped := s.dropped.Load(); dropped != s.reported {
		s.logger.WithField("dropped", dropped-s.reported).Warn("queue full, items dropped")
		s.reported = dropped
	}
	return est, err
}

func (s *stream) reset() {
	s.estimator.Reset()
	s.pushes = 0
	s.converged = false
	s.stale = false
	s.latest.Store(&published{est: drift.Estimate{Rate: 1}, err: ErrClockNotConverged})
	s.metric.Release()
}

type audioEnvelope struct {
	block   signal.Block
	frame   int64
	arrival clock.Time
}

// audioStream resamples blocks with the drift estimate.
type audioStream struct {
	*stream
	in  *ring.Queue[audioEnvelope]
	out *ring.Queue[signal.Block]

	// producer owned
	frames int64

	// orchestration owned
	mode        resample.Mode
	compensator *resample.Compensator
	next        int64
	tap         *wav.Tap
}

func newAudioStream(s *stream) *audioStream {
	return &audioStream{
		stream:      s,
		in:          ring.New[audioEnvelope](s.cfg.RingCapacity),
		out:         ring.New[signal.Block](s.cfg.RingCapacity),
		compensator: resample.New(s.cfg.resample()),
	}
}

// push is called by producer. Local time advances even if block is
// dropped.
func (s *audioStream) push(b signal.Block, arrival clock.Time) error {
	frame := s.frames
	s.frames += int64(b.Frames())
	if err := s.in.Push(audioEnvelope{block: b, frame: frame, arrival: arrival}); err != nil {
		s.dropped.Add(1)
		s.metric.Dropped(1)
		return err
	}
	s.metric.Pushed()
	return nil
}

// poll is called by consumer.
func (s *audioStream) poll() (signal.Block, bool) {
	b, ok := s.out.Pop()
	if !ok {
		s.metric.Underrun()
	}
	return b, ok
}

func (s *audioStream) setMode(m resample.Mode) error {
	s.mode = m
	s.compensator.SetMode(m)
	s.logger.WithField("mode", m).Debug("compensation mode set")
	return nil
}

// setTap replaces the tap. Previous tap is closed.
func (s *audioStream) setTap(t *wav.Tap) error {
	err := s.closeTap()
	s.tap = t
	return err
}

func (s *audioStream) closeTap() error {
	if s.tap == nil {
		return nil
	}
	err := s.tap.Close()
	s.logger.WithField("frames", s.tap.Frames()).Debug("tap closed")
	s.tap = nil
	return err
}

func (s *audioStream) process(now clock.Time) error {
	var errs []error
	for s.out.Len() < s.out.Cap() {
		env, ok := s.in.Pop()
		if !ok {
			break
		}
		s.metric.Latency(now.Sub(env.arrival))
		frames := int64(env.block.Frames())
		s.correlate(drift.Pair{
			Local:  s.localAt(env.frame + frames),
			Global: env.arrival,
		})
		est, estErr := s.refresh(now)
		out, err := s.compensate(env, est, estErr, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out.IsEmpty() {
			continue
		}
		s.metric.Frames(int64(out.Frames()))
		if s.tap != nil {
			if err := s.tap.Write(out); err != nil {
				errs = append(errs, err, s.closeTap())
			}
		}
		// capacity is checked by loop condition
		_ = s.out.Push(out)
	}
	s.refresh(now)
	return errors.Join(errs...)
}

// compensate resamples the block. Frames dropped by producer are replaced
// with silence, unless the gap is longer than a second. Then compensation
// starts over.
func (s *audioStream) compensate(env audioEnvelope, est drift.Estimate, estErr error, now clock.Time) (signal.Block, error) {
	b := env.block
	start := env.frame
	end := env.frame + int64(b.Frames())
	defer func() {
		s.next = end
	}()
	if b.Channels() != s.cfg.Channels {
		return signal.Block{}, fmt.Errorf("%w: expected %d, got %d", resample.ErrChannels, s.cfg.Channels, b.Channels())
	}
	switch gap := start - s.next; {
	case gap > int64(s.cfg.SampleRate):
		s.logger.WithField("frames", gap).Warn("audio gap, compensation restarted")
		s.compensator = resample.New(s.cfg.resample())
		s.compensator.SetMode(s.mode)
	case gap > 0:
		s.logger.WithField("frames", gap).Debug("audio gap filled with silence")
		b.Data = signal.EmptyFloat64(s.cfg.Channels, int(gap)).Append(b.Data)
		start = s.next
	}
	b.SampleRate = s.cfg.SampleRate
	b.Local = s.localAt(start)
	return s.compensator.Process(b, est, estErr, now)
}

func (s *audioStream) localAt(frame int64) clock.Time {
	return clock.Time(clock.FramesToDuration(frame, s.cfg.SampleRate))
}

func (s *audioStream) release() int {
	n := s.in.Drain(func(audioEnvelope) {})
	if err := s.closeTap(); err != nil {
		s.logger.WithError(err).Warn("tap close failed")
	}
	s.compensator = resample.New(s.cfg.resample())
	s.next = 0
	s.reset()
	return n
}

// midiEnvelope carries either an event or a raw chunk. Local time of the
// chunk is kept in the event.
type midiEnvelope struct {
	event   midi.Event
	raw     []byte
	arrival clock.Time
}

// midiStream maps events into global time.
type midiStream struct {
	*stream
	in  *ring.Queue[midiEnvelope]
	out *ring.Queue[midi.Scheduled]

	// orchestration owned
	splitter midi.Splitter
	messages []gomidi.Message
	split    int

	// consumer owned
	scheduler midi.Scheduler
}

func newMidiStream(s *stream) *midiStream {
	return &midiStream{
		stream: s,
		in:     ring.New[midiEnvelope](s.cfg.RingCapacity),
		out:    ring.New[midi.Scheduled](s.cfg.RingCapacity),
	}
}

// push is called by producer.
func (s *midiStream) push(e midi.Event, arrival clock.Time, raw []byte) error {
	if err := s.in.Push(midiEnvelope{event: e, raw: raw, arrival: arrival}); err != nil {
		s.dropped.Add(1)
		s.metric.Dropped(1)
		return err
	}
	s.metric.Pushed()
	return nil
}

// pushBytes is called by producer. Chunk is split during the pass.
func (s *midiStream) pushBytes(chunk []byte, local, arrival clock.Time) error {
	return s.push(midi.Event{Local: local}, arrival, chunk)
}

// schedule is called by consumer. It moves resolved events into scheduler
// and appends events for the horizon to dst.
func (s *midiStream) schedule(dst []midi.Scheduled, h midi.Horizon) ([]midi.Scheduled, error) {
	for {
		e, ok := s.out.Pop()
		if !ok {
			break
		}
		s.scheduler.Add(e)
	}
	from := len(dst)
	dst, err := s.scheduler.Append(dst, h)
	if err != nil {
		var late int64
		for _, e := range dst[from:] {
			if e.Late {
				late++
			}
		}
		s.metric.Late(late)
	}
	return dst, err
}

func (s *midiStream) process(now clock.Time) error {
	for s.out.Len() < s.out.Cap() {
		env, ok := s.in.Pop()
		if !ok {
			break
		}
		s.metric.Latency(now.Sub(env.arrival))
		s.correlate(drift.Pair{
			Local:  env.event.Local,
			Global: env.arrival,
		})
		est, _ := s.refresh(now)
		if env.raw == nil {
			s.resolve(env.event, est)
			continue
		}
		s.messages = s.splitter.Split(s.messages[:0], env.raw)
		for i, m := range s.messages {
			s.resolve(midi.Event{Message: m, Local: env.event.Local}, est)
			s.messages[i] = nil
		}
		if dropped := s.splitter.Dropped(); dropped != s.split {
			s.logger.WithField("bytes", dropped-s.split).Debug("malformed midi bytes dropped")
			s.split = dropped
		}
	}
	s.refresh(now)
	return nil
}

// resolve maps event into global time and publishes it. Event is dropped
// if outbound queue is full.
func (s *midiStream) resolve(e midi.Event, est drift.Estimate) {
	scheduled := midi.Resolve(e, est)
	if scheduled.LowConfidence {
		s.logger.WithFields(logrus.Fields{
			"local":  e.Local,
			"global": scheduled.Global,
		}).Debug("event resolved with low confidence")
	}
	if err := s.out.Push(scheduled); err != nil {
		s.dropped.Add(1)
		s.metric.Dropped(1)
	}
}

func (s *midiStream) release() int {
	n := s.in.Drain(func(midiEnvelope) {})
	s.splitter.Reset()
	s.split = s.splitter.Dropped()
	s.reset()
	return n
}
