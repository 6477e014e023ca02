package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339, RFC3339Nano and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FloorUnix rounds ts down to a multiple of step seconds.
func FloorUnix(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	r := ts % step
	if r < 0 {
		r += step
	}
	return ts - r
}

// CeilUnix rounds ts up to a multiple of step seconds.
func CeilUnix(ts, step int64) int64 {
	f := FloorUnix(ts, step)
	if f == ts || step <= 0 {
		return ts
	}
	return f + step
}

// ReadableUTC formats a unix timestamp for logs.
func ReadableUTC(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}
