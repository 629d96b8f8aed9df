// Package output delivers dispatched messages to devices: hardware MIDI
// ports, a SoundFont synthesizer, or several of them at once.
package output

import (
	"errors"

	"github.com/zurustar/rolandseq/pkg/sequence"
)

var (
	// ErrPortNotFound is returned when no output port matches a name.
	ErrPortNotFound = errors.New("MIDI output port not found")
	// ErrQueueFull reports a message dropped because the device fell behind.
	ErrQueueFull = errors.New("output queue full")
	// ErrClosed reports a message sent after Close.
	ErrClosed = errors.New("output closed")
)

// Sink receives messages from the scheduler. Send and SendBytes must not
// block.
type Sink interface {
	Send(msg sequence.Message)
	SendBytes(b []byte)
	Close() error
}

// AllNotesOff sends All Notes Off on every channel.
func AllNotesOff(s Sink) {
	for ch := uint8(0); ch < 16; ch++ {
		s.Send(sequence.NewControlChange(ch, sequence.CCAllNotesOff, 0))
	}
}

// Multi fans every message out to each of its sinks in order.
type Multi []Sink

// Send forwards msg to every sink.
func (m Multi) Send(msg sequence.Message) {
	for _, s := range m {
		s.Send(msg)
	}
}

// SendBytes forwards b to every sink.
func (m Multi) SendBytes(b []byte) {
	for _, s := range m {
		s.SendBytes(b)
	}
}

// Close closes every sink and returns their errors joined.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
