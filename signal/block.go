package signal

import (
	"time"

	"github.com/go-audio/audio"

	"pipelined.dev/clocksync/clock"
)

// Block is a unit of audio exchanged with drivers and the application.
// Ownership of Data moves with the block: once pushed, the producer must not
// touch it.
type Block struct {
	Data       Float64
	SampleRate int
	Format     SampleFormat
	// Local is the device-local time of the first frame.
	Local clock.Time
	// Global is the estimated global time of the first frame.
	Global clock.Time
}

// NewBlock returns block with allocated zero signal.
func NewBlock(numChannels, frames, sampleRate int) Block {
	return Block{
		Data:       EmptyFloat64(numChannels, frames),
		SampleRate: sampleRate,
	}
}

// FromInterleaved creates block from interleaved samples.
func FromInterleaved(data []float64, numChannels, sampleRate int) Block {
	return Block{
		Data:       Deinterleave(data, numChannels),
		SampleRate: sampleRate,
	}
}

// Frames returns number of frames in the block.
func (b Block) Frames() int {
	return b.Data.Size()
}

// Channels returns number of channels in the block.
func (b Block) Channels() int {
	return b.Data.NumChannels()
}

// Duration returns nominal duration of the block.
func (b Block) Duration() time.Duration {
	return clock.FramesToDuration(int64(b.Frames()), b.SampleRate)
}

// IsEmpty returns true if block has no frames.
func (b Block) IsEmpty() bool {
	return b.Frames() == 0
}

// FromBuffer converts go-audio buffer into block. Int buffers are normalized
// according to their source bit depth.
func FromBuffer(buf audio.Buffer) Block {
	if buf == nil || buf.PCMFormat() == nil {
		return Block{}
	}
	format := buf.PCMFormat()
	b := Block{SampleRate: format.SampleRate}
	switch v := buf.(type) {
	case *audio.IntBuffer:
		b.Format = FormatOfBitDepth(v.SourceBitDepth)
		b.Data = IntsAsFloat64(v.Data, format.NumChannels, b.Format)
	case *audio.Float32Buffer:
		b.Format = Float32Format
		b.Data = Deinterleave(v.AsFloatBuffer().Data, format.NumChannels)
	default:
		b.Format = Float64Format
		b.Data = Deinterleave(buf.AsFloatBuffer().Data, format.NumChannels)
	}
	return b
}

// AsFloatBuffer returns block as interleaved go-audio float buffer.
func (b Block) AsFloatBuffer() *audio.FloatBuffer {
	return &audio.FloatBuffer{
		Format: &audio.Format{
			NumChannels: b.Channels(),
			SampleRate:  b.SampleRate,
		},
		Data: b.Data.Interleave(make([]float64, 0, b.Frames()*b.Channels())),
	}
}

// AsIntBuffer returns block as interleaved go-audio int buffer. Float
// formats are converted to 16 bit.
func (b Block) AsIntBuffer() *audio.IntBuffer {
	format := b.Format
	if format.IsFloat() {
		format = Int16Format
	}
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: b.Channels(),
			SampleRate:  b.SampleRate,
		},
		Data:           b.Data.AsInts(format),
		SourceBitDepth: format.BitDepth(),
	}
}
