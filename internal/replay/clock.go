package replay

import "time"

// timer is the cancellable handle of a scheduled tick.
type timer interface {
	Stop() bool
}

// clock abstracts time so driver tests can run on a fake clock.
type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}
