package sequence

import "sort"

// DefaultMicrosPerBeat is the tempo assumed when a file specifies none (120 BPM).
const DefaultMicrosPerBeat = 500000

// MinMicrosPerBeat is the smallest tempo kept in a tempo map. Lower values
// are clamped so tick to seconds conversion never divides by zero.
const MinMicrosPerBeat = 1

// DefaultPPQ is used when a tempo map is built without a resolution.
const DefaultPPQ = 480

// TempoEntry is a tempo change at an absolute tick.
type TempoEntry struct {
	Tick          uint32
	MicrosPerBeat uint32
}

// BPM converts the entry's tempo to beats per minute.
func (e TempoEntry) BPM() float64 {
	return 60000000.0 / float64(e.MicrosPerBeat)
}

// TempoMap maps ticks to the tempo in effect and integrates elapsed
// seconds across every tempo segment. It is immutable after construction.
type TempoMap struct {
	ppq     uint16
	entries []TempoEntry
	// seconds[i] is the time at which entries[i] takes effect.
	seconds []float64
}

// NewTempoMap builds a tempo map. Entries may be in any order; when two
// share a tick the later one in the slice wins. A default entry is
// synthesised at tick 0 when none exists there, and tempos below
// MinMicrosPerBeat are clamped.
func NewTempoMap(ppq uint16, entries []TempoEntry) *TempoMap {
	if ppq == 0 {
		ppq = DefaultPPQ
	}

	sorted := make([]TempoEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	unique := make([]TempoEntry, 0, len(sorted)+1)
	for _, e := range sorted {
		if e.MicrosPerBeat < MinMicrosPerBeat {
			e.MicrosPerBeat = MinMicrosPerBeat
		}
		if n := len(unique); n > 0 && unique[n-1].Tick == e.Tick {
			unique[n-1] = e
			continue
		}
		unique = append(unique, e)
	}
	if len(unique) == 0 || unique[0].Tick != 0 {
		unique = append([]TempoEntry{{Tick: 0, MicrosPerBeat: DefaultMicrosPerBeat}}, unique...)
	}

	tm := &TempoMap{ppq: ppq, entries: unique}
	tm.precalculate()
	return tm
}

func (tm *TempoMap) precalculate() {
	tm.seconds = make([]float64, len(tm.entries))
	for i := 1; i < len(tm.entries); i++ {
		prev := tm.entries[i-1]
		tm.seconds[i] = tm.seconds[i-1] + tm.span(float64(tm.entries[i].Tick-prev.Tick), prev.MicrosPerBeat)
	}
}

// span converts a tick distance at a constant tempo to seconds.
func (tm *TempoMap) span(ticks float64, microsPerBeat uint32) float64 {
	return ticks * float64(microsPerBeat) / (1000000.0 * float64(tm.ppq))
}

// segment returns the index of the entry in effect at tick.
func (tm *TempoMap) segment(tick float64) int {
	i := sort.Search(len(tm.entries), func(i int) bool { return float64(tm.entries[i].Tick) > tick })
	if i == 0 {
		return 0
	}
	return i - 1
}

// PPQ returns the ticks per quarter note the map converts with.
func (tm *TempoMap) PPQ() uint16 {
	return tm.ppq
}

// Entries returns a copy of the tempo entries in tick order.
func (tm *TempoMap) Entries() []TempoEntry {
	out := make([]TempoEntry, len(tm.entries))
	copy(out, tm.entries)
	return out
}

// Len returns the number of tempo segments.
func (tm *TempoMap) Len() int {
	return len(tm.entries)
}

// TempoAt returns the microseconds per beat in effect at tick.
func (tm *TempoMap) TempoAt(tick uint32) uint32 {
	return tm.entries[tm.segment(float64(tick))].MicrosPerBeat
}

// BPMAt returns the tempo in effect at tick in beats per minute.
func (tm *TempoMap) BPMAt(tick uint32) float64 {
	return tm.entries[tm.segment(float64(tick))].BPM()
}

// TickToSeconds returns the seconds elapsed from tick 0 to tick.
func (tm *TempoMap) TickToSeconds(tick uint32) float64 {
	return tm.SecondsAt(float64(tick))
}

// SecondsAt is TickToSeconds for a fractional tick position.
func (tm *TempoMap) SecondsAt(tick float64) float64 {
	if tick <= 0 {
		return 0
	}
	i := tm.segment(tick)
	e := tm.entries[i]
	return tm.seconds[i] + tm.span(tick-float64(e.Tick), e.MicrosPerBeat)
}

// SecondsToTick returns the fractional tick reached after seconds.
func (tm *TempoMap) SecondsToTick(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	i := sort.Search(len(tm.seconds), func(i int) bool { return tm.seconds[i] > seconds })
	if i > 0 {
		i--
	}
	e := tm.entries[i]
	return float64(e.Tick) + (seconds-tm.seconds[i])*1000000.0*float64(tm.ppq)/float64(e.MicrosPerBeat)
}
