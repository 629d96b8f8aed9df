package sequence

import (
	"errors"
	"testing"
)

func note(delta uint32, m Message) TrackEvent {
	return TrackEvent{Delta: delta, Message: m}
}

func tempo(delta, us uint32) TrackEvent {
	return TrackEvent{Delta: delta, IsTempo: true, MicrosPerBeat: us}
}

func TestBuild_SortsAcrossTracksStably(t *testing.T) {
	tracks := []Track{
		{Events: []TrackEvent{
			tempo(0, 500000),
			note(0, NewProgramChange(0, 1)),
			note(0, NewNoteOn(0, 60, 100)),
			note(480, NewNoteOff(0, 60)),
		}},
		{Events: []TrackEvent{
			note(0, NewNoteOn(1, 64, 90)),
			note(240, NewNoteOff(1, 64)),
			tempo(720, 250000),
		}},
	}

	seq, err := Build(480, tracks, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		tick  uint32
		track int
		kind  Kind
	}{
		{0, 0, ProgramChange},
		{0, 0, NoteOn},
		{0, 1, NoteOn},
		{240, 1, NoteOff},
		{480, 0, NoteOff},
	}
	if len(seq.Events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(seq.Events))
	}
	for i, w := range want {
		ev := seq.Events[i]
		if ev.Tick != w.tick || ev.Track != w.track || ev.Message.Kind != w.kind {
			t.Errorf("event %d = {%d %d %s}, want {%d %d %s}", i, ev.Tick, ev.Track, ev.Message.Kind, w.tick, w.track, w.kind)
		}
	}

	if got := seq.Tempo.TempoAt(960); got != 250000 {
		t.Errorf("expected tempo 250000 at tick 960, got %d", got)
	}
	if seq.EndTick != 960 {
		t.Errorf("expected end tick 960, got %d", seq.EndTick)
	}
	if len(seq.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", seq.Warnings)
	}
}

func TestBuild_UnterminatedNoteGetsDefaultDuration(t *testing.T) {
	tracks := []Track{{Events: []TrackEvent{
		note(0, NewNoteOn(2, 40, 100)),
		note(100, NewNoteOn(2, 41, 100)),
		note(10, NewNoteOff(2, 41)),
	}}}

	seq, err := Build(480, tracks, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seq.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(seq.Warnings))
	}
	if !errors.Is(seq.Warnings[0], ErrUnterminatedNote) {
		t.Errorf("expected ErrUnterminatedNote, got %v", seq.Warnings[0])
	}
	var mf *MalformedFileError
	if !errors.As(seq.Warnings[0], &mf) || mf.Track != 0 || mf.Tick != 0 {
		t.Errorf("unexpected warning location: %v", seq.Warnings[0])
	}

	last := seq.Events[len(seq.Events)-1]
	if last.Tick != 120 || last.Message.Kind != NoteOff || last.Message.Data1 != 40 {
		t.Errorf("expected synthesised note off at 120, got %+v", last)
	}

	syn := seq.Tracks[0].Synthesized
	if len(syn) != 1 || syn[0].Tick != last.Tick || syn[0].Message.Data1 != 40 || syn[0].Track != 0 {
		t.Errorf("expected the track to record the synthesised note off, got %+v", syn)
	}
	if tracks[0].Synthesized != nil {
		t.Error("Build modified the caller's tracks")
	}
}

func TestBuild_ZeroVelocityNoteOnTerminates(t *testing.T) {
	tracks := []Track{{Events: []TrackEvent{
		note(0, NewNoteOn(0, 60, 100)),
		note(480, NewNoteOn(0, 60, 0)),
	}}}

	seq, err := Build(480, tracks, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seq.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", seq.Warnings)
	}
}

func TestBuild_StrictRejectsMalformed(t *testing.T) {
	tracks := []Track{{Events: []TrackEvent{tempo(0, 0), note(0, NewNoteOn(0, 60, 1))}}}

	_, err := Build(480, tracks, Options{Strict: true})
	if !errors.Is(err, ErrInvalidTempo) {
		t.Fatalf("expected ErrInvalidTempo, got %v", err)
	}

	seq, err := Build(480, tracks, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := seq.Tempo.TempoAt(0); got != MinMicrosPerBeat {
		t.Errorf("expected clamped tempo, got %d", got)
	}
	if len(seq.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %d", len(seq.Warnings))
	}
}

func TestSequence_SearchTickAndDuration(t *testing.T) {
	tracks := []Track{{Events: []TrackEvent{
		note(0, NewNoteOn(0, 60, 100)),
		note(480, NewNoteOff(0, 60)),
		note(0, NewNoteOn(0, 62, 100)),
		note(480, NewNoteOff(0, 62)),
	}, Length: 1920}}

	seq, err := Build(480, tracks, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		tick uint32
		want int
	}{
		{0, 0},
		{1, 1},
		{480, 1},
		{481, 3},
		{960, 3},
		{961, 4},
	}
	for _, tt := range tests {
		if got := seq.SearchTick(tt.tick); got != tt.want {
			t.Errorf("SearchTick(%d) = %d, want %d", tt.tick, got, tt.want)
		}
	}

	if d := seq.Duration().Seconds(); !almostEqual(d, 2.0) {
		t.Errorf("expected 2s duration, got %f", d)
	}
}

func TestMessage_BytesAndPatchChange(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		bytes []byte
		patch bool
	}{
		{"note on", NewNoteOn(1, 60, 100), []byte{0x91, 60, 100}, false},
		{"note off", NewNoteOff(15, 60), []byte{0x8F, 60, 0}, false},
		{"program change", NewProgramChange(9, 12), []byte{0xC9, 12}, true},
		{"bank msb", NewControlChange(0, 0, 1), []byte{0xB0, 0, 1}, true},
		{"bank lsb", NewControlChange(0, 32, 2), []byte{0xB0, 32, 2}, true},
		{"volume", NewControlChange(0, 7, 100), []byte{0xB0, 7, 100}, false},
		{"pitch bend center", NewPitchBend(3, 0), []byte{0xE3, 0x00, 0x40}, false},
		{"sysex", NewSysEx([]byte{0xF0, 0x41, 0xF7}), []byte{0xF0, 0x41, 0xF7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.msg.Bytes()
			if string(got) != string(tt.bytes) {
				t.Errorf("Bytes() = % X, want % X", got, tt.bytes)
			}
			if tt.msg.IsPatchChange() != tt.patch {
				t.Errorf("IsPatchChange() = %v, want %v", tt.msg.IsPatchChange(), tt.patch)
			}
		})
	}

	if b := NewPitchBend(0, -8192).Bend(); b != -8192 {
		t.Errorf("expected bend -8192, got %d", b)
	}
	if b := NewPitchBend(0, 8191).Bend(); b != 8191 {
		t.Errorf("expected bend 8191, got %d", b)
	}
}
