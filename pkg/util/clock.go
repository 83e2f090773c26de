package util

import "time"

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// FakeClock is a manually-advanced clock for deterministic tests.
type FakeClock struct {
	T time.Time
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.T.Add(d)
	return ch
}

func (f *FakeClock) Now() time.Time { return f.T }

func (f *FakeClock) Advance(d time.Duration) { f.T = f.T.Add(d) }
