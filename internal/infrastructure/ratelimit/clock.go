package ratelimit

import "time"

// Clock abstracts wall-clock access so bucket refill and waits are
// testable without real sleeps. Refill is always recomputed from Now at
// the moment of use, never cached across a wait.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewRealClock returns a Clock backed by the time package.
func NewRealClock() Clock { return realClock{} }
