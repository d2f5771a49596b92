package utils

import "time"

// Now returns the current UTC time truncated to microsecond precision,
// matching the precision Postgres' timestamp columns store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NowPtr is a convenience for setting optional timestamp columns
// (sent_at, delivered_at, failed_at, verified_at, last_attempt_at).
func NowPtr() *time.Time {
	now := Now()
	return &now
}
