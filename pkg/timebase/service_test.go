package timebase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariants(t *testing.T) {
	want := time.Date(2025, 6, 15, 12, 30, 5, 0, time.UTC)

	cases := []string{
		"2025-06-15 12:30:05",
		"2025-06-15T12:30:05",
		"2025-06-15T12:30:05Z",
		"2025-06-15 12:30:05Z",
		"2025-06-15T14:30:05+02:00",
		"2025-06-15T12:30:05.000000",
		"  2025-06-15 12:30:05  ",
	}
	for _, in := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed to %s", in, got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmptyTimestamp)

	_, err = Parse("yesterday")
	assert.Error(t, err)
}

func TestFormatIsFixedWidthUTC(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 999, time.FixedZone("x", 3600))
	assert.Equal(t, "2025-01-02 02:04:05", Format(ts))
	assert.Len(t, Format(ts), len(Layout))
}

func TestNormalize(t *testing.T) {
	s, ok := Normalize("2025-06-15T23:59:59+01:00")
	require.True(t, ok)
	assert.Equal(t, "2025-06-15 22:59:59", s)

	_, ok = Normalize("n/a")
	assert.False(t, ok)
}

func TestIsFuture(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.False(t, IsFuture(now.Add(59*time.Second), now))
	assert.False(t, IsFuture(now.Add(60*time.Second), now))
	assert.True(t, IsFuture(now.Add(61*time.Second), now))
}

func TestNextMidnight(t *testing.T) {
	ts := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), NextMidnight(ts))
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), NextMidnight(StartOfDay(ts)))
}

func TestFixedClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	c.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), c.Now())
}
