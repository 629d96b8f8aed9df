// Package sequence turns a Standard MIDI File into the data the scheduler
// works on: a tick-sorted event list, the per-track original order and a
// tempo map.
package sequence

import "fmt"

// Kind identifies the variant held by a Message.
type Kind uint8

const (
	NoteOff Kind = iota
	NoteOn
	PolyAftertouch
	ControlChange
	ProgramChange
	ChannelAftertouch
	PitchBend
	SysEx
)

// Controller numbers with special meaning for patch tracking.
const (
	CCBankSelectMSB = 0
	CCBankSelectLSB = 32
	CCAllNotesOff   = 123
)

var kindNames = map[Kind]string{
	NoteOff:           "NoteOff",
	NoteOn:            "NoteOn",
	PolyAftertouch:    "PolyAftertouch",
	ControlChange:     "ControlChange",
	ProgramChange:     "ProgramChange",
	ChannelAftertouch: "ChannelAftertouch",
	PitchBend:         "PitchBend",
	SysEx:             "SysEx",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// status returns the high nibble of the status byte for channel kinds.
func (k Kind) status() byte {
	switch k {
	case NoteOff:
		return 0x80
	case NoteOn:
		return 0x90
	case PolyAftertouch:
		return 0xA0
	case ControlChange:
		return 0xB0
	case ProgramChange:
		return 0xC0
	case ChannelAftertouch:
		return 0xD0
	case PitchBend:
		return 0xE0
	}
	return 0
}

// Message is one MIDI message. Data1/Data2 hold the data bytes of channel
// messages (pitch bend keeps LSB in Data1 and MSB in Data2). SysEx holds the
// complete F0...F7 frame for system exclusive messages.
type Message struct {
	Kind    Kind
	Channel uint8
	Data1   uint8
	Data2   uint8
	SysEx   []byte
}

// NewNoteOn returns a Note On message.
func NewNoteOn(channel, key, velocity uint8) Message {
	return Message{Kind: NoteOn, Channel: channel & 0x0F, Data1: key & 0x7F, Data2: velocity & 0x7F}
}

// NewNoteOff returns a Note Off message.
func NewNoteOff(channel, key uint8) Message {
	return Message{Kind: NoteOff, Channel: channel & 0x0F, Data1: key & 0x7F}
}

// NewControlChange returns a Control Change message.
func NewControlChange(channel, controller, value uint8) Message {
	return Message{Kind: ControlChange, Channel: channel & 0x0F, Data1: controller & 0x7F, Data2: value & 0x7F}
}

// NewProgramChange returns a Program Change message.
func NewProgramChange(channel, program uint8) Message {
	return Message{Kind: ProgramChange, Channel: channel & 0x0F, Data1: program & 0x7F}
}

// NewPitchBend returns a Pitch Bend message for a value in [-8192, 8191].
func NewPitchBend(channel uint8, value int16) Message {
	if value < -8192 {
		value = -8192
	}
	if value > 8191 {
		value = 8191
	}
	abs := uint16(int32(value) + 8192)
	return Message{Kind: PitchBend, Channel: channel & 0x0F, Data1: uint8(abs & 0x7F), Data2: uint8(abs >> 7)}
}

// NewSysEx returns a system exclusive message. frame must include F0 and F7.
func NewSysEx(frame []byte) Message {
	return Message{Kind: SysEx, SysEx: append([]byte(nil), frame...)}
}

// IsChannelMessage reports whether the message is addressed to a channel.
func (m Message) IsChannelMessage() bool {
	return m.Kind != SysEx
}

// IsPatchChange reports whether the message selects a patch: a Program
// Change or a Bank Select (CC#0 / CC#32) control change.
func (m Message) IsPatchChange() bool {
	switch m.Kind {
	case ProgramChange:
		return true
	case ControlChange:
		return m.Data1 == CCBankSelectMSB || m.Data1 == CCBankSelectLSB
	}
	return false
}

// IsNoteStart reports whether the message starts a note (Note On with a
// non-zero velocity).
func (m Message) IsNoteStart() bool {
	return m.Kind == NoteOn && m.Data2 > 0
}

// IsNoteEnd reports whether the message ends a note (Note Off, or Note On
// with zero velocity).
func (m Message) IsNoteEnd() bool {
	return m.Kind == NoteOff || (m.Kind == NoteOn && m.Data2 == 0)
}

// Bend returns the signed pitch bend value.
func (m Message) Bend() int16 {
	return int16(int32(m.Data1)|int32(m.Data2)<<7) - 8192
}

// Bytes serialises the message to wire bytes.
func (m Message) Bytes() []byte {
	switch m.Kind {
	case SysEx:
		return append([]byte(nil), m.SysEx...)
	case ProgramChange, ChannelAftertouch:
		return []byte{m.Kind.status() | m.Channel&0x0F, m.Data1 & 0x7F}
	default:
		return []byte{m.Kind.status() | m.Channel&0x0F, m.Data1 & 0x7F, m.Data2 & 0x7F}
	}
}

func (m Message) String() string {
	switch m.Kind {
	case SysEx:
		return fmt.Sprintf("SysEx % X", m.SysEx)
	case ProgramChange, ChannelAftertouch:
		return fmt.Sprintf("%s ch=%d %d", m.Kind, m.Channel, m.Data1)
	case PitchBend:
		return fmt.Sprintf("%s ch=%d %d", m.Kind, m.Channel, m.Bend())
	default:
		return fmt.Sprintf("%s ch=%d %d %d", m.Kind, m.Channel, m.Data1, m.Data2)
	}
}

// Event is a message scheduled at an absolute tick. Track is the index of
// the track it came from.
type Event struct {
	Tick    uint32
	Track   int
	Message Message
}
