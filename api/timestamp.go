// File: api/timestamp.go
// Author: momentics <momentics@gmail.com>
//
// Opaque wall-clock timestamp handed to read callbacks and used for diagnostics.

package api

import "time"

// TimestampLayout is the fixed textual form YYYY/MM/DD HH:MM:SS.
const TimestampLayout = "2006/01/02 15:04:05"

// Timestamp is an immutable point in time.
type Timestamp struct {
	t time.Time
}

// Now returns the current time.
func Now() Timestamp {
	return Timestamp{t: time.Now()}
}

// TimestampOf wraps an existing time value.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// Time returns the underlying time value.
func (ts Timestamp) Time() time.Time { return ts.t }

// UnixMicro returns microseconds since the epoch.
func (ts Timestamp) UnixMicro() int64 { return ts.t.UnixMicro() }

// IsZero reports whether the timestamp was never set.
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// Before reports whether ts happened before other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// String formats the timestamp in local time using TimestampLayout.
func (ts Timestamp) String() string {
	return ts.t.Local().Format(TimestampLayout)
}
