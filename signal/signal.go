// Package signal provides audio sample blocks exchanged with drivers and
// the application. It allows to:
//	- convert interleaved data to non-interleaved and back
//	- convert int samples of different bit depth to float64
//	- convert blocks to and from go-audio buffers
package signal

import (
	"math"
)

// Float64 is a non-interleaved float64 signal. First dimension is channel.
type Float64 [][]float64

// SampleFormat tags the format samples were delivered in by the driver.
// Samples are always carried as normalized float64, the tag is used to
// convert back to the device representation.
type SampleFormat uint8

// Supported sample formats.
const (
	Float64Format SampleFormat = iota
	Float32Format
	Int16Format
	Int24Format
	Int32Format
)

// BitDepth returns number of bits per sample.
func (f SampleFormat) BitDepth() int {
	switch f {
	case Int16Format:
		return 16
	case Int24Format:
		return 24
	case Int32Format, Float32Format:
		return 32
	default:
		return 64
	}
}

// IsFloat returns true for floating point formats.
func (f SampleFormat) IsFloat() bool {
	return f == Float32Format || f == Float64Format
}

func (f SampleFormat) String() string {
	switch f {
	case Float64Format:
		return "f64"
	case Float32Format:
		return "f32"
	case Int16Format:
		return "s16"
	case Int24Format:
		return "s24"
	case Int32Format:
		return "s32"
	}
	return "unknown"
}

// FormatOfBitDepth returns int format for provided bit depth.
func FormatOfBitDepth(bitDepth int) SampleFormat {
	switch bitDepth {
	case 16:
		return Int16Format
	case 24:
		return Int24Format
	case 32:
		return Int32Format
	}
	return Float64Format
}

// divider is used when int to float conversion is done.
func (f SampleFormat) divider() float64 {
	if f.IsFloat() {
		return 1
	}
	return float64(int64(1) << (f.BitDepth() - 1))
}

// multiplier is used when float to int conversion is done.
func (f SampleFormat) multiplier() float64 {
	if f.IsFloat() {
		return 1
	}
	return f.divider() - 1
}

// EmptyFloat64 returns an empty buffer of specified dimensions.
func EmptyFloat64(numChannels int, size int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, size)
	}
	return result
}

// NumChannels returns number of channels in this signal.
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of frames in this signal.
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Append source signal to existing one. New signal is returned if floats
// is nil.
func (floats Float64) Append(source Float64) Float64 {
	if floats == nil {
		floats = make([][]float64, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float64, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// Slice creates a new copy of signal from start position with defined
// length. If signal doesn't have enough frames, shorter signal is returned.
// If start is out of range, nil is returned.
func (floats Float64) Slice(start int, length int) Float64 {
	if floats == nil || start >= floats.Size() || start < 0 {
		return nil
	}
	end := start + length
	if end > floats.Size() {
		end = floats.Size()
	}
	result := make([][]float64, floats.NumChannels())
	for i := range floats {
		result[i] = append(make([]float64, 0, end-start), floats[i][start:end]...)
	}
	return result
}

// Deinterleave converts interleaved samples into non-interleaved signal.
// Incomplete trailing frame is padded with zeros.
func Deinterleave(data []float64, numChannels int) Float64 {
	if data == nil || numChannels <= 0 {
		return nil
	}
	size := int(math.Ceil(float64(len(data)) / float64(numChannels)))
	floats := EmptyFloat64(numChannels, size)
	for i := range floats {
		pos := 0
		for j := i; j < len(data); j += numChannels {
			floats[i][pos] = data[j]
			pos++
		}
	}
	return floats
}

// Interleave appends interleaved samples of the signal to dst.
func (floats Float64) Interleave(dst []float64) []float64 {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return dst
	}
	for i := 0; i < floats.Size(); i++ {
		for j := 0; j < numChannels; j++ {
			dst = append(dst, floats[j][i])
		}
	}
	return dst
}

// IntsAsFloat64 converts interleaved int samples of provided format into
// normalized non-interleaved signal.
func IntsAsFloat64(ints []int, numChannels int, format SampleFormat) Float64 {
	if ints == nil || numChannels <= 0 {
		return nil
	}
	divider := format.divider()
	size := int(math.Ceil(float64(len(ints)) / float64(numChannels)))
	floats := EmptyFloat64(numChannels, size)
	for i := range floats {
		pos := 0
		for j := i; j < len(ints); j += numChannels {
			floats[i][pos] = float64(ints[j]) / divider
			pos++
		}
	}
	return floats
}

// AsInts converts signal to interleaved ints of provided format. Values
// outside of [-1, 1] are clipped.
func (floats Float64) AsInts(format SampleFormat) []int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return nil
	}
	multiplier := format.multiplier()
	ints := make([]int, floats.Size()*numChannels)
	for j := range floats {
		for i := range floats[j] {
			v := math.Max(-1, math.Min(1, floats[j][i]))
			ints[i*numChannels+j] = int(math.Round(v * multiplier))
		}
	}
	return ints
}
