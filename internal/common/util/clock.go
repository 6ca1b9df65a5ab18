package util

import "time"

// Clock abstracts wall-clock reads so deadline logic can be tested without
// real waiting.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DummyClock reports a fixed time and only moves when advanced by hand.
type DummyClock struct {
	t time.Time
}

func NewDummyClock(t time.Time) *DummyClock {
	return &DummyClock{t: t}
}

func (c *DummyClock) Now() time.Time { return c.t }

func (c *DummyClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
