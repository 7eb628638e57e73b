// Package timeutil normalizes the heterogeneous timestamps delivered by the
// market-data feed into timezone-aware instants, and provides the
// time-of-day window arithmetic used for session anchors.
package timeutil

import (
	"strconv"
	"strings"
	"time"
)

// Magnitude boundaries for epoch unit inference. Values below msBoundary are
// read as seconds, below usBoundary as milliseconds, below nsBoundary as
// microseconds, otherwise nanoseconds. The heuristic is ambiguous for
// century-scale future dates; that is an accepted policy, not a guarantee.
const (
	msBoundary = 1_000_000_000_000
	usBoundary = 1_000_000_000_000_000
	nsBoundary = 1_000_000_000_000_000_000
)

// Normalize converts a raw timestamp token into a UTC instant. The token is
// either an epoch count at unknown precision (integer, or a numeric string)
// or an ISO-8601 string, optionally with a trailing Z. A naive ISO string is
// treated as UTC. ok is false when the token cannot be parsed; callers drop
// such rows rather than substituting the current time.
func Normalize(raw string) (time.Time, bool) {
	s := strings.TrimSpace(strings.Trim(raw, `"`))
	if s == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return time.Time{}, false
		}
		return FromEpoch(n), true
	}

	return parseISO(s)
}

// FromEpoch interprets a non-negative epoch count, inferring its unit from
// magnitude, and returns the UTC instant.
func FromEpoch(n int64) time.Time {
	switch {
	case n < msBoundary:
		return time.Unix(n, 0).UTC()
	case n < usBoundary:
		return time.UnixMilli(n).UTC()
	case n < nsBoundary:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

func parseISO(s string) (time.Time, bool) {
	// RFC3339 covers both "Z" and explicit offsets.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	// Naive forms are read as UTC.
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeOfDay is a wall-clock time within a session day, e.g. the 09:30:00
// AVWAP anchor. Comparisons are done in seconds since midnight so they stay
// stable across dates.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// Seconds returns the offset from midnight.
func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) String() string {
	return time.Date(0, 1, 1, t.Hour, t.Minute, t.Second, 0, time.UTC).Format("15:04:05")
}

// ClockSeconds returns ts's wall-clock offset from midnight in loc.
func ClockSeconds(ts time.Time, loc *time.Location) int {
	h, m, s := ts.In(loc).Clock()
	return h*3600 + m*60 + s
}

// InWindow reports whether ts falls in [start, end) measured on the session
// wall clock.
func InWindow(ts time.Time, loc *time.Location, start, end TimeOfDay) bool {
	s := ClockSeconds(ts, loc)
	return s >= start.Seconds() && s < end.Seconds()
}

// SessionDate formats ts as the session date string YYYYMMDD in loc.
func SessionDate(ts time.Time, loc *time.Location) string {
	return ts.In(loc).Format("20060102")
}
