// Package fgtime provides the timestamp arithmetic shared by the traffic
// generator, wire codec, and scheduler. It wraps time.Time rather than a
// hand-rolled timespec, since every timestamp in the daemon is taken from
// time.Now and time.Time already carries a monotonic reading on every
// platform Go supports.
package fgtime

import "time"

// Now returns the current timestamp. Callers in the event loop are expected
// to call this once per iteration and reuse the result for every
// time-dependent decision in that iteration.
func Now() time.Time {
	return time.Now()
}

// Add returns t advanced by the given number of seconds. Negative values
// move t into the past.
func Add(t time.Time, seconds float64) time.Time {
	return t.Add(time.Duration(seconds * float64(time.Second)))
}

// Diff returns b-a in seconds.
func Diff(a, b time.Time) float64 {
	return b.Sub(a).Seconds()
}

// IsAfter reports whether a is strictly later than b.
func IsAfter(a, b time.Time) bool {
	return a.After(b)
}

// Zero reports whether t is the zero value, used throughout the daemon to
// mean "not yet set" for optional deadlines such as a direction's stop time.
func Zero(t time.Time) bool {
	return t.IsZero()
}
