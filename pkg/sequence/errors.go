package sequence

import (
	"errors"
	"fmt"
)

// ErrInvalidTempo is reported for a tempo meta-event of zero microseconds per beat.
var ErrInvalidTempo = errors.New("invalid tempo")

// ErrUnterminatedNote is reported for a Note On without a matching Note Off.
var ErrUnterminatedNote = errors.New("unterminated note")

// ErrUnsupportedTimeFormat is returned for SMPTE-timed files.
var ErrUnsupportedTimeFormat = errors.New("unsupported MIDI time format")

// ErrNoTracks is returned when a file contains no tracks.
var ErrNoTracks = errors.New("MIDI file has no tracks")

// ErrInvalidFormat is returned when the file cannot be parsed as a Standard MIDI File.
var ErrInvalidFormat = errors.New("invalid MIDI file format")

// MalformedFileError locates a problem found while building a sequence.
// Tick is the absolute tick of the offending event.
type MalformedFileError struct {
	Track int
	Tick  uint32
	Err   error
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("malformed MIDI file: track %d tick %d: %v", e.Track, e.Tick, e.Err)
}

func (e *MalformedFileError) Unwrap() error {
	return e.Err
}
