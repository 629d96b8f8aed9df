package sequence

import (
	"sort"
	"time"
)

// TrackEvent is one entry of a track in its original order. Delta is the
// tick distance from the previous entry. Tempo entries carry IsTempo and
// MicrosPerBeat instead of a Message.
type TrackEvent struct {
	Delta         uint32
	Message       Message
	IsTempo       bool
	MicrosPerBeat uint32
}

// Track is one track of a file.
type Track struct {
	Name   string
	Events []TrackEvent
	// Length is the absolute tick of the end of the track, which may lie
	// after its last event.
	Length uint32
	// Synthesized holds the Note Offs Build added for notes the track never
	// ends, at their absolute ticks. They are also part of Sequence.Events.
	Synthesized []Event
}

// Options configures Build.
type Options struct {
	// Strict makes recoverable problems fail the build instead of being
	// repaired and reported in Sequence.Warnings.
	Strict bool
	// NoteTicks is the duration given to a Note On that is never
	// terminated. Zero selects DefaultNoteTicks.
	NoteTicks uint32
}

// Sequence is a loaded file ready for playback.
type Sequence struct {
	PPQ    uint16
	Tracks []Track
	// Events holds every channel and SysEx message of all tracks sorted by
	// tick. Ties keep track then message order.
	Events  []Event
	Tempo   *TempoMap
	EndTick uint32
	// Warnings lists the problems repaired while building.
	Warnings []error
}

// DefaultNoteTicks returns one scheduler step, a sixteenth note, at ppq.
func DefaultNoteTicks(ppq uint16) uint32 {
	if t := uint32(ppq) / 4; t > 0 {
		return t
	}
	return 1
}

type noteKey struct {
	channel uint8
	key     uint8
}

// Build flattens tracks into a tick-sorted event list and a tempo map.
// Tempo entries feed the tempo map and are left out of the event list.
func Build(ppq uint16, tracks []Track, opts Options) (*Sequence, error) {
	if ppq == 0 {
		ppq = DefaultPPQ
	}
	noteTicks := opts.NoteTicks
	if noteTicks == 0 {
		noteTicks = DefaultNoteTicks(ppq)
	}

	seq := &Sequence{PPQ: ppq, Tracks: append([]Track(nil), tracks...)}
	var tempos []TempoEntry

	for ti, track := range seq.Tracks {
		var abs uint32
		seq.Tracks[ti].Synthesized = nil
		open := make(map[noteKey][]uint32)

		for _, te := range track.Events {
			abs += te.Delta
			if te.IsTempo {
				if te.MicrosPerBeat < MinMicrosPerBeat {
					seq.Warnings = append(seq.Warnings, &MalformedFileError{Track: ti, Tick: abs, Err: ErrInvalidTempo})
				}
				tempos = append(tempos, TempoEntry{Tick: abs, MicrosPerBeat: te.MicrosPerBeat})
				continue
			}

			msg := te.Message
			k := noteKey{msg.Channel, msg.Data1}
			switch {
			case msg.IsNoteStart():
				open[k] = append(open[k], abs)
			case msg.IsNoteEnd():
				if starts := open[k]; len(starts) > 0 {
					open[k] = starts[1:]
				}
			}
			seq.Events = append(seq.Events, Event{Tick: abs, Track: ti, Message: msg})
		}

		end := max(abs, track.Length)
		for _, k := range sortedKeys(open) {
			for _, start := range open[k] {
				seq.Warnings = append(seq.Warnings, &MalformedFileError{Track: ti, Tick: start, Err: ErrUnterminatedNote})
				off := start + noteTicks
				ev := Event{Tick: off, Track: ti, Message: NewNoteOff(k.channel, k.key)}
				seq.Events = append(seq.Events, ev)
				seq.Tracks[ti].Synthesized = append(seq.Tracks[ti].Synthesized, ev)
				end = max(end, off)
			}
		}
		seq.EndTick = max(seq.EndTick, end)
	}

	if opts.Strict && len(seq.Warnings) > 0 {
		return nil, seq.Warnings[0]
	}

	sort.SliceStable(seq.Events, func(i, j int) bool { return seq.Events[i].Tick < seq.Events[j].Tick })
	seq.Tempo = NewTempoMap(ppq, tempos)
	return seq, nil
}

func sortedKeys(m map[noteKey][]uint32) []noteKey {
	keys := make([]noteKey, 0, len(m))
	for k, v := range m {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].key < keys[j].key
	})
	return keys
}

// SearchTick returns the index of the first event at or after tick.
func (s *Sequence) SearchTick(tick uint32) int {
	return sort.Search(len(s.Events), func(i int) bool { return s.Events[i].Tick >= tick })
}

// Duration returns the playing time of the whole sequence.
func (s *Sequence) Duration() time.Duration {
	return time.Duration(s.Tempo.TickToSeconds(s.EndTick) * float64(time.Second))
}
