package session

import "time"

// Clock abstracts wall time so debounce and throttle behavior can be
// tested by advancing a fake clock instead of sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type systemClock struct{}

// SystemClock returns the real-time Clock used outside tests.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
