// Package clock provides the wall clock shared by the ledger engine and the
// checkpoint scheduler.
package clock

import "time"

// SystemClock reads the wall clock. Ledger timestamps are always UTC.
type SystemClock struct{}

// After waits for d to elapse on the wall clock
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now returns the current time in UTC, truncated to microseconds to match
// PostgreSQL timestamp precision
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
