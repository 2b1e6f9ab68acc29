package clocksync

import (
	"sort"
	"time"

	"pipelined.dev/clocksync/clock"
)

// Snapshot is a diagnostic view of the engine. It can be encoded as JSON.
type Snapshot struct {
	Now     clock.Time       `json:"now"`
	Streams []StreamSnapshot `json:"streams"`
}

// StreamSnapshot is a diagnostic view of a single stream.
type StreamSnapshot struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Rate       float64           `json:"rate"`
	Drift      float64           `json:"drift_ppm"`
	Offset     time.Duration     `json:"offset"`
	Samples    int               `json:"samples"`
	Residual   time.Duration     `json:"residual"`
	Confidence string            `json:"confidence"`
	Queued     int               `json:"queued"`
	Ready      int               `json:"ready"`
	Metrics    map[string]string `json:"metrics,omitempty"`
}

// Snapshot returns diagnostic view of open streams sorted by id.
func (e *Engine) Snapshot() Snapshot {
	streams := *e.streams.Load()
	result := Snapshot{
		Now:     e.clock.Now(),
		Streams: make([]StreamSnapshot, 0, len(streams)),
	}
	for id, p := range streams {
		s := p.base()
		est, _ := s.estimate()
		ss := StreamSnapshot{
			ID:         id.String(),
			Kind:       s.kind.String(),
			Rate:       est.Rate,
			Drift:      est.Drift(),
			Offset:     time.Duration(est.Offset),
			Samples:    est.Samples,
			Residual:   est.Residual,
			Confidence: est.Confidence().String(),
			Metrics:    s.metric.Values(),
		}
		switch v := p.(type) {
		case *audioStream:
			ss.Queued, ss.Ready = v.in.Len(), v.out.Len()
		case *midiStream:
			ss.Queued, ss.Ready = v.in.Len(), v.out.Len()
		}
		result.Streams = append(result.Streams, ss)
	}
	sort.Slice(result.Streams, func(i, j int) bool {
		return result.Streams[i].ID < result.Streams[j].ID
	})
	return result
}
