// Package playback schedules a sequence against wall-clock time.
//
// The Engine is driven by repeated calls to ProcessUntilNow from a single
// polling loop. It converts the elapsed wall-clock time since its anchor into
// a score position through the tempo map and dispatches every event that has
// become due. The engine holds no locks: exactly one goroutine may call its
// methods at a time.
package playback

import (
	"log/slog"
	"time"

	"github.com/zurustar/rolandseq/pkg/logger"
	"github.com/zurustar/rolandseq/pkg/sequence"
)

// State is the transport state of an Engine.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// OutputFunc receives each dispatched message in tick order. It must not
// block; device transports are expected to enqueue.
type OutputFunc func(msg sequence.Message)

// Position is the scheduler's anchor: the tick and wall-clock time playback
// was (re)started from and the index of the next undispatched event.
type Position struct {
	StartTick      uint32
	StartWallclock time.Time
	EventIndex     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger used for transport state changes.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithOnFinished registers a callback run once when the event list is
// exhausted.
func WithOnFinished(fn func()) Option {
	return func(e *Engine) { e.onFinished = fn }
}

// WithFilter sets the mute filter. The engine owns it afterwards.
func WithFilter(f *Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// Engine is the tempo-aware event scheduler.
type Engine struct {
	seq        *sequence.Sequence
	output     OutputFunc
	clock      Clock
	log        *slog.Logger
	onFinished func()
	filter     *Filter

	state State
	pos   Position

	// anchorTick is the fractional tick at pos.StartWallclock and
	// anchorScore its score time in seconds.
	anchorTick  float64
	anchorScore float64
	pausedTick  float64

	// override is a constant tempo replacing the tempo map when non-zero.
	override uint32
}

// New creates a stopped engine for seq.
func New(seq *sequence.Sequence, output OutputFunc, opts ...Option) *Engine {
	e := &Engine{
		seq:    seq,
		output: output,
		clock:  SystemClock(),
		filter: NewFilter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.GetLogger()
	}
	e.anchor(0)
	return e
}

// Sequence returns the sequence being played.
func (e *Engine) Sequence() *sequence.Sequence {
	return e.seq
}

// Filter returns the engine's mute filter.
func (e *Engine) Filter() *Filter {
	return e.filter
}

// State returns the current transport state.
func (e *Engine) State() State {
	return e.state
}

// Position returns the current anchor.
func (e *Engine) Position() Position {
	return e.pos
}

// Start anchors playback at tick and enters the playing state.
func (e *Engine) Start(tick uint32) {
	e.locate(tick)
	e.setState(Playing)
}

// ScrubToTick relocates the anchor and event index to tick without changing
// the transport state.
func (e *Engine) ScrubToTick(tick uint32) {
	e.locate(tick)
	if e.state == Paused {
		e.pausedTick = float64(tick)
	}
	e.log.Debug("Playback scrubbed", "tick", tick, "index", e.pos.EventIndex, "state", e.state)
}

// Pause stops dispatching and remembers the exact position. It does nothing
// unless playing.
func (e *Engine) Pause() {
	if e.state != Playing {
		return
	}
	e.pausedTick = e.currentTick()
	e.setState(Paused)
}

// Resume continues from the position captured by Pause, re-anchored to the
// current wall-clock time. It does nothing unless paused.
func (e *Engine) Resume() {
	if e.state != Paused {
		return
	}
	e.anchor(e.pausedTick)
	e.setState(Playing)
}

// Stop enters the stopped state. The position is kept.
func (e *Engine) Stop() {
	if e.state == Stopped {
		return
	}
	e.anchorTick = e.currentTick()
	e.anchorScore = e.scoreSeconds(e.anchorTick)
	e.setState(Stopped)
}

// MuteTrack mutes or unmutes a track from the next ProcessUntilNow on.
func (e *Engine) MuteTrack(track int, muted bool) {
	e.filter.MuteTrack(track, muted)
}

// MuteChannel mutes or unmutes a channel from the next ProcessUntilNow on.
func (e *Engine) MuteChannel(channel uint8, muted bool) {
	e.filter.MuteChannel(channel, muted)
}

// SetTempoOverride plays at a constant tempo in microseconds per beat
// instead of following the tempo map. Zero restores the tempo map. The
// current position is preserved.
func (e *Engine) SetTempoOverride(microsPerBeat uint32) {
	cur := e.currentTick()
	e.override = microsPerBeat
	switch e.state {
	case Playing:
		e.anchor(cur)
	default:
		e.anchorScore = e.scoreSeconds(e.anchorTick)
	}
	e.log.Debug("Tempo override changed", "microsPerBeat", microsPerBeat)
}

// TempoOverride returns the active override, zero when none.
func (e *Engine) TempoOverride() uint32 {
	return e.override
}

// CurrentTick returns the score position now.
func (e *Engine) CurrentTick() uint32 {
	return uint32(e.currentTick())
}

// Elapsed returns the score time of the current position.
func (e *Engine) Elapsed() time.Duration {
	return time.Duration(e.scoreSeconds(e.currentTick()) * float64(time.Second))
}

// ProcessUntilNow dispatches every event that is due and returns how many
// were sent. Suppressed events are skipped over without being sent. When the
// last event has been passed the engine stops and the finished callback runs.
func (e *Engine) ProcessUntilNow() int {
	if e.state != Playing {
		return 0
	}

	limit := e.anchorScore + e.clock.Now().Sub(e.pos.StartWallclock).Seconds()
	events := e.seq.Events
	sent := 0

	for e.pos.EventIndex < len(events) {
		ev := events[e.pos.EventIndex]
		if e.scoreSeconds(float64(ev.Tick)) > limit {
			break
		}
		if e.filter.ShouldSend(ev) {
			e.output(ev.Message)
			sent++
		}
		e.pos.EventIndex++
	}

	if e.pos.EventIndex >= len(events) {
		e.anchorTick = e.endTick()
		e.anchorScore = e.scoreSeconds(e.anchorTick)
		e.setState(Stopped)
		if e.onFinished != nil {
			e.onFinished()
		}
	}
	return sent
}

func (e *Engine) endTick() float64 {
	if n := len(e.seq.Events); n > 0 {
		return float64(e.seq.Events[n-1].Tick)
	}
	return e.anchorTick
}

func (e *Engine) locate(tick uint32) {
	e.anchor(float64(tick))
	e.pos.EventIndex = e.seq.SearchTick(tick)
}

func (e *Engine) anchor(tick float64) {
	e.anchorTick = tick
	e.anchorScore = e.scoreSeconds(tick)
	e.pos.StartTick = uint32(tick)
	e.pos.StartWallclock = e.clock.Now()
}

func (e *Engine) currentTick() float64 {
	switch e.state {
	case Playing:
		return e.tickAt(e.anchorScore + e.clock.Now().Sub(e.pos.StartWallclock).Seconds())
	case Paused:
		return e.pausedTick
	}
	return e.anchorTick
}

// scoreSeconds converts a tick to seconds on the active timeline.
func (e *Engine) scoreSeconds(tick float64) float64 {
	if e.override > 0 {
		return tick * float64(e.override) / (1000000.0 * float64(e.seq.Tempo.PPQ()))
	}
	return e.seq.Tempo.SecondsAt(tick)
}

func (e *Engine) tickAt(seconds float64) float64 {
	if e.override > 0 {
		return seconds * 1000000.0 * float64(e.seq.Tempo.PPQ()) / float64(e.override)
	}
	return e.seq.Tempo.SecondsToTick(seconds)
}

func (e *Engine) setState(s State) {
	prev := e.state
	e.state = s
	e.log.Debug("Playback state changed", "from", prev, "to", s, "tick", e.pos.StartTick, "index", e.pos.EventIndex)
}
