// Package prebuffer flattens a sequence into a list of wire-ready messages
// before playback starts, so the polling worker only has to walk a slice.
//
// Tempo changes become markers in the list. Every payload is stamped with
// the tempo in effect at its tick, which lets a player convert ticks to
// seconds incrementally without consulting the tempo map.
package prebuffer

import (
	"context"
	"errors"
	"sort"

	"github.com/zurustar/rolandseq/pkg/playback"
	"github.com/zurustar/rolandseq/pkg/sequence"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Preprocessor.Start while a pass is in flight.
var ErrBusy = errors.New("preprocessing already in progress")

// Kind distinguishes tempo markers from payload messages.
type Kind uint8

const (
	Payload Kind = iota
	Marker
)

func (k Kind) String() string {
	if k == Marker {
		return "marker"
	}
	return "payload"
}

// BufferedMessage is one entry of a prebuffered list. A Marker carries the
// new tempo in Tempo and no payload. A Payload carries the wire bytes and
// the tempo in effect at Tick.
type BufferedMessage struct {
	Tick    uint32
	Kind    Kind
	Tempo   uint32
	Payload []byte
}

// Options selects what Build keeps.
type Options struct {
	// StartTick drops everything before it.
	StartTick uint32
	// Mute is consulted for every message. Muted tracks and channels keep
	// only their patch changes. Nil mutes nothing.
	Mute *playback.Filter
	// TempoOverride, when non-zero, replaces every tempo of the file. No
	// markers are emitted and every payload carries the override.
	TempoOverride uint32
}

// Build returns the prebuffered messages of seq sorted by tick, with tempo
// markers ahead of payloads sharing a tick.
func Build(seq *sequence.Sequence, opts Options) []BufferedMessage {
	initial := seq.Tempo.TempoAt(opts.StartTick)
	if opts.TempoOverride > 0 {
		initial = opts.TempoOverride
	}

	var out []BufferedMessage
	for ti, track := range seq.Tracks {
		var abs uint32
		provisional := initial
		for _, te := range track.Events {
			abs += te.Delta
			if te.IsTempo {
				if opts.TempoOverride > 0 {
					continue
				}
				tempo := max(te.MicrosPerBeat, sequence.MinMicrosPerBeat)
				provisional = tempo
				out = append(out, BufferedMessage{Tick: abs, Kind: Marker, Tempo: tempo})
				continue
			}
			if !opts.Mute.Allows(ti, te.Message) {
				continue
			}
			out = append(out, BufferedMessage{Tick: abs, Kind: Payload, Tempo: provisional, Payload: te.Message.Bytes()})
		}
		for _, ev := range track.Synthesized {
			if opts.Mute.Allows(ti, ev.Message) {
				out = append(out, BufferedMessage{Tick: ev.Tick, Kind: Payload, Tempo: provisional, Payload: ev.Message.Bytes()})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tick != out[j].Tick {
			return out[i].Tick < out[j].Tick
		}
		return out[i].Kind == Marker && out[j].Kind != Marker
	})

	// The provisional tempo only knows about its own track; walk the merged
	// list once to stamp the tempo that is really in effect.
	current := initial
	kept := out[:0]
	for _, m := range out {
		if m.Kind == Marker {
			current = m.Tempo
		} else {
			m.Tempo = current
		}
		if m.Tick >= opts.StartTick {
			kept = append(kept, m)
		}
	}
	return kept
}

// Result is the outcome of an asynchronous pass.
type Result struct {
	Messages []BufferedMessage
	Err      error
}

// Preprocessor runs Build off the playback goroutine. It allows a single
// pass at a time.
type Preprocessor struct {
	sem *semaphore.Weighted
}

// NewPreprocessor creates an idle preprocessor.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{sem: semaphore.NewWeighted(1)}
}

// Start begins a pass and returns a channel receiving exactly one Result.
// It returns ErrBusy without starting when a previous pass has not
// delivered its result yet.
func (p *Preprocessor) Start(ctx context.Context, seq *sequence.Sequence, opts Options) (<-chan Result, error) {
	if !p.sem.TryAcquire(1) {
		return nil, ErrBusy
	}

	// The filter may be changed by the caller while the pass runs.
	opts.Mute = opts.Mute.Clone()
	ch := make(chan Result, 1)

	go func() {
		var res Result
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else if res.Messages = Build(seq, opts); ctx.Err() != nil {
			res = Result{Err: ctx.Err()}
		}
		// Release before delivering so a receiver may start the next pass
		// right away.
		p.sem.Release(1)
		ch <- res
	}()
	return ch, nil
}

// Busy reports whether a pass is in flight.
func (p *Preprocessor) Busy() bool {
	if !p.sem.TryAcquire(1) {
		return true
	}
	p.sem.Release(1)
	return false
}
