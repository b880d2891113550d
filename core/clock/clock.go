// Package clock isolates wall-clock reads so capture timestamps can be pinned in tests.
package clock

import "time"

// Clock reports the current time. Production code injects Real(); tests inject
// Fixed() so emitted records are reproducible.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Real returns a Clock backed by the system wall clock, in UTC.
func Real() Clock { return realClock{} }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// Fixed returns a Clock that always reports at (converted to UTC).
func Fixed(at time.Time) Clock { return fixedClock{at: at.UTC()} }

// Or returns c, or Real() when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return Real()
	}
	return c
}
