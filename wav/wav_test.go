package wav_test

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/clocksync/clock"
	"pipelined.dev/clocksync/signal"
	"pipelined.dev/clocksync/wav"
)

const sampleRate = 44100

func stereo(frames int) signal.Block {
	b := signal.NewBlock(2, frames, sampleRate)
	for i := 0; i < frames; i++ {
		b.Data[0][i] = math.Sin(2 * math.Pi * 440 * float64(i) / sampleRate)
		b.Data[1][i] = -b.Data[0][i] / 2
	}
	return b
}

func TestTap(t *testing.T) {
	tests := []struct {
		format signal.SampleFormat
	}{
		{format: signal.Int16Format},
		{format: signal.Int24Format},
		{format: signal.Int32Format},
	}
	for _, test := range tests {
		t.Run(test.format.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tap.wav")
			tap, err := wav.Create(path, sampleRate, 2, test.format)
			require.NoError(t, err)
			in := stereo(1000)
			require.NoError(t, tap.Write(signal.Block{Data: in.Data.Slice(0, 600), SampleRate: sampleRate}))
			require.NoError(t, tap.Write(signal.Block{}))
			require.NoError(t, tap.Write(signal.Block{Data: in.Data.Slice(600, 400), SampleRate: sampleRate}))
			assert.Equal(t, int64(1000), tap.Frames())
			require.NoError(t, tap.Close())

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			r, err := wav.NewReader(f, 256)
			require.NoError(t, err)
			assert.Equal(t, sampleRate, r.SampleRate())
			assert.Equal(t, 2, r.Channels())

			var (
				out   signal.Float64
				local []clock.Time
			)
			for {
				b, err := r.Read()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				assert.Equal(t, test.format, b.Format)
				out = out.Append(b.Data)
				local = append(local, b.Local)
			}
			require.Equal(t, 1000, out.Size())
			epsilon := 2 / math.Pow(2, float64(test.format.BitDepth()-1))
			for ch := range out {
				assert.InDeltaSlice(t, in.Data[ch], out[ch], epsilon)
			}
			assert.Equal(t, clock.Time(0), local[0])
			assert.Equal(t, clock.Time(clock.FramesToDuration(256, sampleRate)), local[1])
		})
	}
}

func TestTapErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	_, err := wav.Create(path, sampleRate, 2, signal.Float32Format)
	assert.ErrorIs(t, err, wav.ErrUnsupportedFormat)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	tap, err := wav.Create(filepath.Join(t.TempDir(), "mono.wav"), sampleRate, 1, signal.Int16Format)
	require.NoError(t, err)
	assert.ErrorIs(t, tap.Write(stereo(10)), wav.ErrMismatch)
	assert.NoError(t, tap.Close())

	_, err = wav.NewReader(io.NewSectionReader(emptyReader{}, 0, 0), 10)
	assert.ErrorIs(t, err, wav.ErrInvalidFile)
}

type emptyReader struct{}

func (emptyReader) ReadAt([]byte, int64) (int, error) {
	return 0, io.EOF
}
