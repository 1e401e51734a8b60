package engine

import "time"

// Clock supplies wall-clock time and interval waits to runners.
//
// Implemented by SystemClock (production) and testutil.Clock (tests).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real clock. Times are in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// After waits for d to elapse.
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
