package playback

import "time"

// Clock supplies wall-clock time to the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}
