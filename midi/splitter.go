package midi

import gomidi "gitlab.com/gomidi/midi/v2"

// maxSysEx limits buffered system exclusive message size.
const maxSysEx = 1 << 16

const (
	sysExStart = 0xF0
	sysExEnd   = 0xF7
)

// Splitter splits raw MIDI byte stream into complete messages. Engine uses
// it for raw chunks, drivers may use it to parse bytes themselves. Chunks
// may end in the middle of a message. Data bytes without status and
// unterminated system exclusive messages are dropped. Running status is
// not supported.
type Splitter struct {
	buf     []byte
	need    int
	sysex   bool
	dropped int
}

// Dropped returns number of dropped bytes.
func (s *Splitter) Dropped() int {
	return s.dropped
}

// Split appends complete messages found in chunk to dst.
func (s *Splitter) Split(dst []gomidi.Message, chunk []byte) []gomidi.Message {
	for _, b := range chunk {
		switch {
		case b >= 0xF8:
			// realtime can interleave any message
			dst = append(dst, gomidi.Message{b})
		case b == sysExEnd:
			if !s.sysex {
				s.dropped++
				continue
			}
			s.buf = append(s.buf, b)
			dst = s.emit(dst)
		case b&0x80 != 0:
			s.drop()
			s.buf = append(s.buf, b)
			s.sysex = b == sysExStart
			s.need = messageLen(b)
			if s.need == 1 {
				dst = s.emit(dst)
			}
		case len(s.buf) == 0:
			s.dropped++
		default:
			s.buf = append(s.buf, b)
			if s.sysex {
				if len(s.buf) > maxSysEx {
					s.drop()
				}
				continue
			}
			if len(s.buf) == s.need {
				dst = s.emit(dst)
			}
		}
	}
	return dst
}

// Reset drops incomplete message.
func (s *Splitter) Reset() {
	s.drop()
}

func (s *Splitter) emit(dst []gomidi.Message) []gomidi.Message {
	msg := make(gomidi.Message, len(s.buf))
	copy(msg, s.buf)
	s.buf = s.buf[:0]
	s.sysex = false
	return append(dst, msg)
}

func (s *Splitter) drop() {
	s.dropped += len(s.buf)
	s.buf = s.buf[:0]
	s.sysex = false
}

// messageLen returns full message length for status byte. Zero means
// variable length.
func messageLen(status byte) int {
	switch {
	case status < 0xC0:
		return 3
	case status < 0xE0:
		return 2
	case status < 0xF0:
		return 3
	}
	switch status {
	case sysExStart:
		return 0
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	}
	return 1
}
