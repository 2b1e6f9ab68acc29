package midi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gomidi "gitlab.com/gomidi/midi/v2"

	"pipelined.dev/clocksync/midi"
)

func TestSplitter(t *testing.T) {
	tests := []struct {
		desc     string
		chunks   [][]byte
		expected []gomidi.Message
		dropped  int
	}{
		{
			desc:     "single message",
			chunks:   [][]byte{gomidi.NoteOn(0, 60, 100)},
			expected: []gomidi.Message{gomidi.NoteOn(0, 60, 100)},
		},
		{
			desc:   "split across chunks",
			chunks: [][]byte{{0x91, 0x40}, {0x7F, 0xC2}, {0x05}},
			expected: []gomidi.Message{
				gomidi.NoteOn(1, 0x40, 0x7F),
				gomidi.ProgramChange(2, 5),
			},
		},
		{
			desc:   "realtime inside message",
			chunks: [][]byte{{0xB1, 0x07, 0xF8, 0x40}},
			expected: []gomidi.Message{
				gomidi.TimingClock(),
				gomidi.ControlChange(1, 7, 64),
			},
		},
		{
			desc:     "stray data bytes",
			chunks:   [][]byte{{0x01, 0x02}, gomidi.NoteOn(0, 60, 100), {0x03}},
			expected: []gomidi.Message{gomidi.NoteOn(0, 60, 100)},
			dropped:  3,
		},
		{
			desc:     "sysex",
			chunks:   [][]byte{{0xF0, 0x7E, 0x7F}, {0x06, 0x01, 0xF7}},
			expected: []gomidi.Message{{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}},
		},
		{
			desc:     "aborted sysex",
			chunks:   [][]byte{{0xF0, 0x7E, 0x7F}, gomidi.NoteOn(0, 60, 100)},
			expected: []gomidi.Message{gomidi.NoteOn(0, 60, 100)},
			dropped:  3,
		},
		{
			desc:     "incomplete message",
			chunks:   [][]byte{{0x90, 0x3C}, {0xF6}},
			expected: []gomidi.Message{{0xF6}},
			dropped:  2,
		},
		{
			desc:    "stray sysex end",
			chunks:  [][]byte{{0xF7}},
			dropped: 1,
		},
		{
			desc:     "song position",
			chunks:   [][]byte{{0xF2, 0x10, 0x20}},
			expected: []gomidi.Message{{0xF2, 0x10, 0x20}},
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			var s midi.Splitter
			var result []gomidi.Message
			for _, chunk := range test.chunks {
				result = s.Split(result, chunk)
			}
			assert.Equal(t, test.expected, result)
			assert.Equal(t, test.dropped, s.Dropped())
		})
	}
}

func TestSplitterTypes(t *testing.T) {
	var s midi.Splitter
	msgs := s.Split(nil, []byte{0x90, 0x3C, 0x64, 0xF8, 0xF0, 0x01, 0xF7})
	assert.Len(t, msgs, 3)
	assert.True(t, msgs[0].Is(gomidi.NoteOnMsg))
	assert.True(t, msgs[1].Is(gomidi.TimingClockMsg))
	assert.True(t, msgs[2].Is(gomidi.SysExMsg))

	// messages don't share the internal buffer
	more := s.Split(nil, []byte{0x80, 0x3C, 0x00})
	assert.True(t, more[0].Is(gomidi.NoteOffMsg))
	assert.Equal(t, gomidi.Message{0x90, 0x3C, 0x64}, msgs[0])

	s.Split(nil, []byte{0x90, 0x3C})
	s.Reset()
	assert.Equal(t, 2, s.Dropped())
}
