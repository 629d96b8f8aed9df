package worker

import (
	"time"

	"github.com/zurustar/rolandseq/pkg/prebuffer"
	"github.com/zurustar/rolandseq/pkg/sequence"
)

// Player plays a prebuffered message list. It converts tick distances to
// seconds incrementally at the tempo stamped on each payload, or set by the
// last marker, so it never consults a tempo map. Like the engine it is driven by one goroutine.
type Player struct {
	send func([]byte)

	msgs  []prebuffer.BufferedMessage
	ppq   uint16
	tempo uint32

	index   int
	tick    uint32
	seconds float64 // score time at tick, relative to the start
	start   time.Time
	started bool
	stopped bool
}

// NewPlayer creates a player writing payloads to send.
func NewPlayer(send func([]byte)) *Player {
	return &Player{send: send}
}

// Setup loads a list and rewinds every counter. startTick is the score
// position the list was built from; the first step anchors it to the
// current time.
func (p *Player) Setup(msgs []prebuffer.BufferedMessage, ppq uint16, initialTempo uint32, startTick uint32) {
	if ppq == 0 {
		ppq = sequence.DefaultPPQ
	}
	if initialTempo == 0 {
		initialTempo = sequence.DefaultMicrosPerBeat
	}
	p.msgs = msgs
	p.ppq = ppq
	p.tempo = initialTempo
	p.index = 0
	p.tick = startTick
	p.seconds = 0
	p.start = time.Time{}
	p.started = false
	p.stopped = false
}

// Step sends every payload that is due at now and applies the markers
// passed on the way.
func (p *Player) Step(now time.Time) bool {
	if p.stopped {
		return true
	}
	if !p.started {
		p.start = now
		p.started = true
	}
	elapsed := now.Sub(p.start).Seconds()

	for p.index < len(p.msgs) {
		m := p.msgs[p.index]
		// A payload carries the tempo in effect since the previous entry,
		// so lists without markers time correctly too.
		if m.Kind == prebuffer.Payload && m.Tempo > 0 {
			p.tempo = m.Tempo
		}
		due := p.seconds
		if m.Tick > p.tick {
			due += float64(m.Tick-p.tick) * float64(p.tempo) / (1000000.0 * float64(p.ppq))
		}
		if due > elapsed {
			break
		}

		p.seconds = due
		p.tick = max(p.tick, m.Tick)
		if m.Kind == prebuffer.Marker {
			p.tempo = m.Tempo
		} else if p.send != nil {
			p.send(m.Payload)
		}
		p.index++
	}
	return p.Done()
}

// Stop ends playback. Step reports done until the next Setup.
func (p *Player) Stop() {
	p.stopped = true
}

// Done reports whether the list is exhausted or the player stopped.
func (p *Player) Done() bool {
	return p.stopped || p.index >= len(p.msgs)
}

// Tick returns the tick of the last message passed.
func (p *Player) Tick() uint32 {
	return p.tick
}

// Tempo returns the tempo currently applied.
func (p *Player) Tempo() uint32 {
	return p.tempo
}

// Remaining returns the number of messages not yet passed.
func (p *Player) Remaining() int {
	return len(p.msgs) - p.index
}
