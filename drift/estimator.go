package drift

import (
	"math"
	"time"

	"pipelined.dev/clocksync/clock"
)

// Estimator fits the affine clock mapping over a sliding window of pairs.
// It's not safe for concurrent use: a single goroutine owns it.
type Estimator struct {
	cfg Config

	window []Pair
	first  int // index of the oldest pair
	n      int

	// running sums relative to origin.
	origin               Pair
	sx, sy, sxx, sxy, syy float64
	// additions since the last exact recompute.
	sinceRebase int

	last     Pair
	outliers int
	rejected int

	current Estimate
	valid   bool
}

// New returns estimator with provided config. Zero values of config are
// replaced with defaults. Config must be valid.
func New(cfg Config) *Estimator {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &Estimator{
		cfg:    cfg,
		window: make([]Pair, cfg.WindowSize),
	}
}

// Config returns estimator config.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Len returns number of pairs in the window.
func (e *Estimator) Len() int {
	return e.n
}

// Rejected returns number of pairs rejected since creation or reset.
func (e *Estimator) Rejected() int {
	return e.rejected
}

// Add puts a new pair into the window and refits the mapping.
func (e *Estimator) Add(p Pair) error {
	if e.n > 0 && p.Local <= e.last.Local {
		e.rejected++
		return ErrNonMonotonic
	}
	if e.cfg.OutlierThreshold > 0 && e.valid {
		residual := p.Global.Sub(e.current.Global(p.Local))
		if residual < 0 {
			residual = -residual
		}
		if residual > e.cfg.OutlierThreshold {
			e.outliers++
			if e.outliers < maxConsecutiveOutliers {
				e.rejected++
				return ErrOutlier
			}
			// persistent deviation is a clock jump, start over from here.
			e.clear()
		}
	}
	e.outliers = 0

	if e.n == 0 {
		e.origin = p
	}
	if e.n == len(e.window) {
		e.subtract(e.window[e.first])
		e.first = (e.first + 1) % len(e.window)
		e.n--
	}
	e.window[(e.first+e.n)%len(e.window)] = p
	e.n++
	e.add(p)
	e.last = p

	e.sinceRebase++
	if e.sinceRebase >= len(e.window) {
		e.rebase()
	}
	e.fit()
	return nil
}

// Estimate returns the current mapping. If estimate has not converged,
// ErrNotConverged is returned along with a pass-through estimate anchored
// at the latest pair.
func (e *Estimator) Estimate(now clock.Time) (Estimate, error) {
	est := e.current
	if !e.valid {
		est = PassThrough(e.last.Global - e.last.Local)
		est.Samples = e.n
		est.Updated = e.last.Global
	}
	if e.n > 0 && e.cfg.StalenessTimeout > 0 && now.Sub(e.last.Global) > e.cfg.StalenessTimeout {
		est.Stale = true
	}
	if !e.valid {
		return est, ErrNotConverged
	}
	return est, nil
}

// Reset clears the history.
func (e *Estimator) Reset() {
	e.clear()
	e.rejected = 0
}

func (e *Estimator) clear() {
	for i := range e.window {
		e.window[i] = Pair{}
	}
	e.first, e.n = 0, 0
	e.sx, e.sy, e.sxx, e.sxy, e.syy = 0, 0, 0, 0, 0
	e.sinceRebase = 0
	e.last = Pair{}
	e.outliers = 0
	e.current = Estimate{}
	e.valid = false
}

func (e *Estimator) add(p Pair) {
	x, y := e.relative(p)
	e.sx += x
	e.sy += y
	e.sxx += x * x
	e.sxy += x * y
	e.syy += y * y
}

func (e *Estimator) subtract(p Pair) {
	x, y := e.relative(p)
	e.sx -= x
	e.sy -= y
	e.sxx -= x * x
	e.sxy -= x * y
	e.syy -= y * y
}

func (e *Estimator) relative(p Pair) (float64, float64) {
	return float64(p.Local - e.origin.Local), float64(p.Global - e.origin.Global)
}

// rebase moves origin to the oldest pair and recomputes sums exactly.
func (e *Estimator) rebase() {
	e.sinceRebase = 0
	e.origin = e.window[e.first]
	e.sx, e.sy, e.sxx, e.sxy, e.syy = 0, 0, 0, 0, 0
	for i := 0; i < e.n; i++ {
		e.add(e.window[(e.first+i)%len(e.window)])
	}
}

func (e *Estimator) span() time.Duration {
	if e.n < 2 {
		return 0
	}
	oldest := e.window[e.first]
	return e.last.Local.Sub(oldest.Local)
}

func (e *Estimator) fit() {
	if e.n < e.cfg.MinSamples || e.span() < e.cfg.MinSpan || e.n < 2 {
		e.valid = false
		return
	}
	n := float64(e.n)
	mx, my := e.sx/n, e.sy/n
	cxx := e.sxx - e.sx*mx
	cxy := e.sxy - e.sx*my
	cyy := e.syy - e.sy*my
	if cxx <= 0 {
		e.valid = false
		return
	}
	rate := cxy / cxx
	intercept := my - rate*mx

	rss := cyy - rate*cxy
	if rss < 0 {
		rss = 0
	}
	e.current = Estimate{
		Offset:       float64(e.origin.Global) + intercept - rate*float64(e.origin.Local),
		Rate:         rate,
		Samples:      e.n,
		Valid:        true,
		Residual:     time.Duration(math.Sqrt(rss / n)),
		Updated:      e.last.Global,
		originLocal:  e.origin.Local,
		originGlobal: e.origin.Global,
		intercept:    intercept,
	}
	e.valid = true
}
