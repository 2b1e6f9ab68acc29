package resample

import "math"

// Quality selects interpolation kernel.
type Quality uint8

const (
	// Cubic is a 4-point Hermite interpolation. It's the default.
	Cubic Quality = iota
	// Linear is a 2-point linear interpolation.
	Linear
	// Sinc is a 16-point Blackman-windowed sinc interpolation.
	Sinc
)

func (q Quality) String() string {
	switch q {
	case Cubic:
		return "cubic"
	case Linear:
		return "linear"
	case Sinc:
		return "sinc"
	}
	return "unknown"
}

// Kernel reconstructs signal at fractional positions.
type Kernel interface {
	// Support returns how many frames before and after the integer
	// position are needed.
	Support() (before, after int)
	// Interpolate returns the value at position i+frac. Frames from
	// i-before to i+after must be present in x.
	Interpolate(x []float64, i int, frac float64) float64
}

// KernelOf returns kernel for provided quality. Unknown values fall back to
// cubic.
func KernelOf(q Quality) Kernel {
	switch q {
	case Linear:
		return linear{}
	case Sinc:
		return sinc{halfWidth: 8}
	default:
		return hermite{}
	}
}

type linear struct{}

func (linear) Support() (int, int) {
	return 0, 1
}

func (linear) Interpolate(x []float64, i int, frac float64) float64 {
	return x[i] + (x[i+1]-x[i])*frac
}

type hermite struct{}

func (hermite) Support() (int, int) {
	return 1, 2
}

func (hermite) Interpolate(x []float64, i int, t float64) float64 {
	x0, x1, x2, x3 := x[i-1], x[i], x[i+1], x[i+2]
	diff := x1 - x2
	c1 := x2 - x0
	c3 := x3 - x0 + 3*diff
	c2 := -(2*diff + c1 + c3)
	return 0.5*((c3*t+c2)*t+c1)*t + x1
}

type sinc struct {
	halfWidth int
}

func (k sinc) Support() (int, int) {
	return k.halfWidth - 1, k.halfWidth
}

func (k sinc) Interpolate(x []float64, i int, frac float64) float64 {
	if frac == 0 {
		return x[i]
	}
	w := float64(k.halfWidth)
	// sin(π(frac-j)) = (-1)^j sin(π·frac)
	s := math.Sin(math.Pi * frac)
	var sum, norm float64
	for j := -(k.halfWidth - 1); j <= k.halfWidth; j++ {
		t := frac - float64(j)
		sign := 1.0
		if j%2 != 0 {
			sign = -1
		}
		h := sign * s / (math.Pi * t) * blackman(t, w)
		sum += x[i+j] * h
		norm += h
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// blackman window centered at zero with provided half width.
func blackman(t, halfWidth float64) float64 {
	if t <= -halfWidth || t >= halfWidth {
		return 0
	}
	a := math.Pi * t / halfWidth
	return 0.42 + 0.5*math.Cos(a) + 0.08*math.Cos(2*a)
}
