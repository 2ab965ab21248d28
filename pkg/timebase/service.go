// Timebase owns the one parse/format path for wall-clock strings.
// Stored timestamps are fixed-width "YYYY-MM-DD HH:MM:SS" and sort textually.
package timebase

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

// Layout is the canonical persisted timestamp form.
const Layout = "2006-01-02 15:04:05"

// DateLayout is used for calendar-day keys (yield history, daily totals).
const DateLayout = "2006-01-02"

// FutureTolerance is how far ahead of the local clock a sample may be
// before it is tagged as coming from the future.
const FutureTolerance = 60 * time.Second

var ErrEmptyTimestamp = errors.New("empty timestamp")

var localMode atomic.Bool

// Accepted input layouts, tried in order. Offsets are handled by the
// RFC3339 variants; everything else is naive.
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-0700",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	Layout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	DateLayout,
}

// SetLocal switches the interpretation of naive timestamps (and the zone
// used when formatting) from UTC to the host's local zone.
// Existing rows are not migrated when this is flipped.
func SetLocal(enabled bool) {
	localMode.Store(enabled)
}

// IsLocal reports whether local-time mode is active.
func IsLocal() bool {
	return localMode.Load()
}

// Zone returns the location naive timestamps are interpreted in.
func Zone() *time.Location {
	if localMode.Load() {
		return time.Local
	}
	return time.UTC
}

// Format renders t in the canonical persisted form.
func Format(t time.Time) string {
	return t.In(Zone()).Format(Layout)
}

// FormatDate renders the calendar day of t in the configured zone.
func FormatDate(t time.Time) string {
	return t.In(Zone()).Format(DateLayout)
}

// Parse accepts ISO-8601 with or without a trailing Z and with or without
// an offset. Naive values are interpreted in Zone().
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyTimestamp
	}

	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		naive := s[:len(s)-1]
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, naive, time.UTC); err == nil {
				return t.In(Zone()), nil
			}
		}
	}

	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(Zone()), nil
		}
	}

	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, Zone())
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Normalize parses s and re-renders it canonically.
func Normalize(s string) (string, bool) {
	t, err := Parse(s)
	if err != nil {
		return "", false
	}
	return Format(t), true
}

// IsFuture reports whether t lies beyond now plus FutureTolerance.
func IsFuture(t, now time.Time) bool {
	return t.After(now.Add(FutureTolerance))
}

// StartOfDay truncates t to midnight in the configured zone.
func StartOfDay(t time.Time) time.Time {
	t = t.In(Zone())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextMidnight returns the first midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}
