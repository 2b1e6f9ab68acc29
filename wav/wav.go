// Package wav records streams into wav files and reads recorded files back
// as blocks.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/signal"
)

var (
	// ErrUnsupportedFormat is returned when unsupported sample format is
	// used.
	ErrUnsupportedFormat = errors.New("only 16, 24 and 32 bit integer formats are supported")
	// ErrInvalidFile is returned when file is not a valid wav.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrMismatch is returned when block doesn't match the tap layout.
	ErrMismatch = errors.New("block layout mismatch")
)

const pcmFormat = 1

// Tap writes blocks into a wav stream. It's used to inspect corrected
// audio.
type Tap struct {
	format     signal.SampleFormat
	sampleRate int
	channels   int
	encoder    *wav.Encoder
	file       *os.File
	frames     int64
}

// NewTap creates new tap which writes into provided writer.
func NewTap(w io.WriteSeeker, sampleRate, channels int, format signal.SampleFormat) (*Tap, error) {
	if format.IsFloat() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	return &Tap{
		format:     format,
		sampleRate: sampleRate,
		channels:   channels,
		encoder:    wav.NewEncoder(w, sampleRate, format.BitDepth(), channels, pcmFormat),
	}, nil
}

// Create creates the file and returns tap which writes into it. File is
// closed when tap is closed.
func Create(path string, sampleRate, channels int, format signal.SampleFormat) (*Tap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t, err := NewTap(f, sampleRate, channels, format)
	if err != nil {
		return nil, errors.Join(err, f.Close(), os.Remove(path))
	}
	t.file = f
	return t, nil
}

// Write appends block to the stream.
func (t *Tap) Write(b signal.Block) error {
	if b.IsEmpty() {
		return nil
	}
	if b.Channels() != t.channels || (b.SampleRate != 0 && b.SampleRate != t.sampleRate) {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrMismatch, b.Channels(), b.SampleRate)
	}
	t.frames += int64(b.Frames())
	return t.encoder.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: t.channels,
			SampleRate:  t.sampleRate,
		},
		Data:           b.Data.AsInts(t.format),
		SourceBitDepth: t.format.BitDepth(),
	})
}

// Frames returns number of written frames.
func (t *Tap) Frames() int64 {
	return t.frames
}

// Close finalizes wav headers and closes the file if tap owns it.
func (t *Tap) Close() error {
	err := t.encoder.Close()
	if t.file != nil {
		err = errors.Join(err, t.file.Close())
	}
	return err
}

// Reader reads wav stream as blocks with local timestamps derived from
// frame position.
type Reader struct {
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	format  signal.SampleFormat
	frames  int64
}

// NewReader validates wav header and returns a reader which returns blocks
// of provided size.
func NewReader(r io.ReadSeeker, blockSize int) (*Reader, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFile
	}
	format := signal.FormatOfBitDepth(int(decoder.BitDepth))
	if format.IsFloat() {
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, decoder.BitDepth)
	}
	if err := decoder.FwdToPCM(); err != nil {
		return nil, err
	}
	f := decoder.Format()
	return &Reader{
		decoder: decoder,
		format:  format,
		buf: &audio.IntBuffer{
			Format:         f,
			Data:           make([]int, blockSize*f.NumChannels),
			SourceBitDepth: int(decoder.BitDepth),
		},
	}, nil
}

// SampleRate of the stream.
func (r *Reader) SampleRate() int {
	return int(r.decoder.SampleRate)
}

// Channels of the stream.
func (r *Reader) Channels() int {
	return int(r.decoder.NumChans)
}

// Read returns next block. io.EOF is returned when stream is over.
func (r *Reader) Read() (signal.Block, error) {
	n, err := r.decoder.PCMBuffer(r.buf)
	if err != nil {
		return signal.Block{}, err
	}
	if n == 0 {
		return signal.Block{}, io.EOF
	}
	channels := r.Channels()
	b := signal.Block{
		Data:       signal.IntsAsFloat64(r.buf.Data[:n], channels, r.format),
		SampleRate: r.SampleRate(),
		Format:     r.format,
		Local:      clock.Time(clock.FramesToDuration(r.frames, r.SampleRate())),
	}
	r.frames += int64(b.Frames())
	return b, nil
}
