package midi

import "slices"

// Scheduler keeps resolved events until their horizon comes. It's not safe
// for concurrent use.
type Scheduler struct {
	pending []Scheduled
}

// Add appends event to the pending list. Events are kept in arrival order.
func (s *Scheduler) Add(e Scheduled) {
	s.pending = append(s.pending, e)
}

// Len returns number of pending events.
func (s *Scheduler) Len() int {
	return len(s.pending)
}

// Reset drops all pending events.
func (s *Scheduler) Reset() {
	clear(s.pending)
	s.pending = s.pending[:0]
}

// Append adds events which fall into the horizon to dst and returns the
// extended slice. Appended events are sorted by offset and events with the
// same offset keep arrival order. Events before the horizon are appended
// once with Late flag and ErrLate is returned along with the result. Events
// after the horizon stay pending.
func (s *Scheduler) Append(dst []Scheduled, h Horizon) ([]Scheduled, error) {
	from := len(dst)
	var late bool
	kept := s.pending[:0]
	for _, e := range s.pending {
		offset, err := OffsetIn(e.Global, h)
		switch err {
		case nil:
			e.Offset = offset
			dst = append(dst, e)
		case ErrLate:
			e.Offset = 0
			e.Late = true
			late = true
			dst = append(dst, e)
		default:
			kept = append(kept, e)
		}
	}
	clear(s.pending[len(kept):])
	s.pending = kept

	slices.SortStableFunc(dst[from:], func(a, b Scheduled) int {
		return a.Offset - b.Offset
	})
	if late {
		return dst, ErrLate
	}
	return dst, nil
}
