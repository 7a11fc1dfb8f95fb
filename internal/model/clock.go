package model

import (
	"fmt"
	"time"
)

// Schedule strings ("HH:MM") are the doctor's local wall time and are
// compared as minute-of-day integers. Stored timestamps are UTC.

// ParseClock parses an "HH:MM" wall-clock string into minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// CombineDateClock resolves a calendar date plus a local minute-of-day
// into an absolute UTC instant in the given location.
func CombineDateClock(date time.Time, minute int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, loc).UTC()
}

// DateOnly truncates a timestamp to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
