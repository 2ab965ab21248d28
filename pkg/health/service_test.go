package health

import (
	"testing"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOKAndError(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := timebase.NewFixedClock(start)
	r := NewRegister(clock)

	r.RecordOK(types.SourcePV, 120*time.Millisecond)
	clock.Advance(10 * time.Second)
	r.RecordError(types.SourcePV, faults.New(faults.Timeout, "deadline"), 5*time.Second)
	r.RecordError(types.SourcePV, faults.New(faults.HTTPStatus, "503"), 20*time.Millisecond)

	rec, ok := r.Get(types.SourcePV)
	require.True(t, ok)
	assert.Equal(t, start, *rec.LastOK)
	assert.Equal(t, start.Add(10*time.Second), *rec.LastError)
	assert.Equal(t, 2, rec.ErrorCount)
	assert.Equal(t, int64(20), rec.LastLatencyMs)
	assert.Equal(t, "http_status", rec.LastErrorKind)
	assert.Equal(t, "503", rec.LastErrorMsg)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.errors.WithLabelValues("pv", "timeout")))
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRegister(timebase.NewFixedClock(time.Now()))
	r.RecordFuture(types.SourceHeating)

	snap := r.Snapshot()
	rec := snap[types.SourceHeating]
	rec.FutureCount = 99

	again, _ := r.Get(types.SourceHeating)
	assert.Equal(t, 1, again.FutureCount)
}

func TestStale(t *testing.T) {
	clock := timebase.NewFixedClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	r := NewRegister(clock)
	assert.True(t, r.Stale(types.SourcePV, time.Minute))

	r.RecordOK(types.SourcePV, time.Millisecond)
	assert.False(t, r.Stale(types.SourcePV, time.Minute))

	clock.Advance(2 * time.Minute)
	assert.True(t, r.Stale(types.SourcePV, time.Minute))
}
