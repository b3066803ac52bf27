package auth

import "time"

// Clock returns the current instant. Token issuance, expiry checks and
// revocation eviction all read time through it.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

func normalizeClock(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
