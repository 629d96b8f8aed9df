package sequence

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Load parses a Standard MIDI File and builds a sequence from it.
func Load(r io.Reader, opts Options) (*Sequence, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return FromSMF(s, opts)
}

// LoadFile reads and builds the MIDI file at path.
func LoadFile(path string, opts Options) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return Load(bytes.NewReader(data), opts)
}

// FromSMF builds a sequence from an already parsed file.
func FromSMF(s *smf.SMF, opts Options) (*Sequence, error) {
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTimeFormat, s.TimeFormat)
	}
	if len(s.Tracks) == 0 {
		return nil, ErrNoTracks
	}

	tracks := make([]Track, len(s.Tracks))
	for i, tr := range s.Tracks {
		tracks[i] = convertTrack(tr)
	}
	return Build(ticks.Resolution(), tracks, opts)
}

// convertTrack keeps tempo, channel and SysEx events. The deltas of
// dropped meta events are carried into the next kept event.
func convertTrack(tr smf.Track) Track {
	var out Track
	var pending, abs uint32

	for _, ev := range tr {
		pending += ev.Delta
		abs += ev.Delta

		var name string
		if ev.Message.GetMetaTrackName(&name) {
			if out.Name == "" {
				out.Name = decodeText(name)
			}
			continue
		}

		raw := []byte(ev.Message)
		if ev.Message.Is(smf.MetaTempoMsg) {
			if len(raw) < 3 {
				continue
			}
			n := len(raw)
			us := uint32(raw[n-3])<<16 | uint32(raw[n-2])<<8 | uint32(raw[n-1])
			out.Events = append(out.Events, TrackEvent{Delta: pending, IsTempo: true, MicrosPerBeat: us})
			pending = 0
			continue
		}

		msg, ok := decodeMessage(raw)
		if !ok {
			continue
		}
		out.Events = append(out.Events, TrackEvent{Delta: pending, Message: msg})
		pending = 0
	}

	out.Length = abs
	return out
}

func decodeMessage(b []byte) (Message, bool) {
	m := midi.Message(b)
	var ch, d1, d2 uint8
	var rel int16
	var abs uint16
	var data []byte

	switch {
	case m.GetNoteOn(&ch, &d1, &d2):
		return Message{Kind: NoteOn, Channel: ch, Data1: d1, Data2: d2}, true
	case m.GetNoteOff(&ch, &d1, &d2):
		return Message{Kind: NoteOff, Channel: ch, Data1: d1, Data2: d2}, true
	case m.GetPolyAfterTouch(&ch, &d1, &d2):
		return Message{Kind: PolyAftertouch, Channel: ch, Data1: d1, Data2: d2}, true
	case m.GetControlChange(&ch, &d1, &d2):
		return Message{Kind: ControlChange, Channel: ch, Data1: d1, Data2: d2}, true
	case m.GetProgramChange(&ch, &d1):
		return Message{Kind: ProgramChange, Channel: ch, Data1: d1}, true
	case m.GetAfterTouch(&ch, &d1):
		return Message{Kind: ChannelAftertouch, Channel: ch, Data1: d1}, true
	case m.GetPitchBend(&ch, &rel, &abs):
		return Message{Kind: PitchBend, Channel: ch, Data1: uint8(abs & 0x7F), Data2: uint8(abs >> 7 & 0x7F)}, true
	case m.GetSysEx(&data):
		frame := make([]byte, 0, len(data)+2)
		frame = append(frame, 0xF0)
		frame = append(frame, data...)
		frame = append(frame, 0xF7)
		return Message{Kind: SysEx, SysEx: frame}, true
	}
	return Message{}, false
}

// decodeText returns s unchanged when it is valid UTF-8 and decodes it as
// Shift_JIS otherwise, which covers most files authored on Japanese systems.
func decodeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), s)
	if err != nil {
		return s
	}
	return decoded
}
