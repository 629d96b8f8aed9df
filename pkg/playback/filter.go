package playback

import (
	"sort"

	"github.com/zurustar/rolandseq/pkg/sequence"
)

// Filter holds the muted track and channel sets consulted before an event
// is dispatched. Patch changes always pass so a muted instrument keeps
// tracking its program and bank.
type Filter struct {
	tracks   map[int]bool
	channels [16]bool
}

// NewFilter returns a filter with nothing muted.
func NewFilter() *Filter {
	return &Filter{tracks: make(map[int]bool)}
}

// MuteTrack adds the track to or removes it from the muted set.
func (f *Filter) MuteTrack(track int, muted bool) {
	if muted {
		f.tracks[track] = true
	} else {
		delete(f.tracks, track)
	}
}

// MuteChannel adds the channel (0-15) to or removes it from the muted set.
func (f *Filter) MuteChannel(channel uint8, muted bool) {
	if channel > 15 {
		return
	}
	f.channels[channel] = muted
}

// TrackMuted reports whether track is muted.
func (f *Filter) TrackMuted(track int) bool {
	return f != nil && f.tracks[track]
}

// ChannelMuted reports whether channel is muted.
func (f *Filter) ChannelMuted(channel uint8) bool {
	return f != nil && channel < 16 && f.channels[channel]
}

// MutedTracks returns the muted tracks in ascending order.
func (f *Filter) MutedTracks() []int {
	if f == nil {
		return nil
	}
	out := make([]int, 0, len(f.tracks))
	for t := range f.tracks {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// Allows reports whether a message from track may be sent. A nil filter
// allows everything.
func (f *Filter) Allows(track int, msg sequence.Message) bool {
	if f == nil || msg.IsPatchChange() {
		return true
	}
	if f.tracks[track] {
		return false
	}
	if msg.IsChannelMessage() && f.channels[msg.Channel&0x0F] {
		return false
	}
	return true
}

// ShouldSend is Allows for a scheduled event.
func (f *Filter) ShouldSend(ev sequence.Event) bool {
	return f.Allows(ev.Track, ev.Message)
}

// Clone returns an independent copy of the filter.
func (f *Filter) Clone() *Filter {
	c := NewFilter()
	if f == nil {
		return c
	}
	for t := range f.tracks {
		c.tracks[t] = true
	}
	c.channels = f.channels
	return c
}
