package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	daily     []types.DailyEnergy
	history   []types.YieldRow
	dailyErr  error
	replaced  int
	cleanups  []int
	cleanupTo types.CleanupResult
}

func (f *fakeStore) DailyTotals(days int) ([]types.DailyEnergy, error) {
	return f.daily, f.dailyErr
}

func (f *fakeStore) YieldHistory() ([]types.YieldRow, error) {
	return f.history, nil
}

func (f *fakeStore) ReplaceYieldHistory(rows []types.YieldRow) error {
	f.history = rows
	f.replaced++
	return nil
}

func (f *fakeStore) CleanupOld(retentionDays int) (types.CleanupResult, error) {
	f.cleanups = append(f.cleanups, retentionDays)
	return f.cleanupTo, nil
}

var clock = timebase.NewFixedClock(time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC))

func readReport(t *testing.T, dir string) Report {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, ReportFile))
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(b, &r))
	return r
}

func TestRebuildDropsEmptyDaysAndAccumulates(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{
		daily: []types.DailyEnergy{
			{Date: "2025-06-01", PVKWh: 5, Samples: 10},
			{Date: "2025-06-02", PVKWh: 0, Samples: 10},
			{Date: "2025-06-03", PVKWh: 7, Samples: 10},
		},
		history: []types.YieldRow{{Date: "2025-06-01", DailyKWh: 10, TotalKWh: 10}},
	}

	report, err := RebuildYieldHistory(store, dir, clock)
	require.NoError(t, err)

	assert.Equal(t, []types.YieldRow{
		{Date: "2025-06-01", DailyKWh: 5, TotalKWh: 5},
		{Date: "2025-06-03", DailyKWh: 7, TotalKWh: 12},
	}, store.history)

	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, 2, report.Days)
	assert.Equal(t, 1, report.DroppedDays)
	assert.Equal(t, 1, report.OldDays)
	assert.InDelta(t, 12.0, report.NewTotalKWh, 1e-9)
	assert.InDelta(t, 20.0, report.DeltaPct, 1e-9)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, report, readReport(t, dir))

	b, err := os.ReadFile(filepath.Join(dir, BackupFile))
	require.NoError(t, err)
	var bk backup
	require.NoError(t, json.Unmarshal(b, &bk))
	assert.Equal(t, []types.YieldRow{{Date: "2025-06-01", DailyKWh: 10, TotalKWh: 10}}, bk.Rows)
}

func TestRebuildKeepsDaysPastRetention(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{
		daily: []types.DailyEnergy{
			{Date: "2025-06-02", PVKWh: 4, Samples: 10},
			{Date: "2025-06-03", PVKWh: 6, Samples: 10},
		},
		history: []types.YieldRow{
			{Date: "2024-05-30", DailyKWh: 3, TotalKWh: 3},
			{Date: "2024-05-31", DailyKWh: 7, TotalKWh: 10},
			{Date: "2025-06-02", DailyKWh: 1, TotalKWh: 11},
		},
	}

	report, err := RebuildYieldHistory(store, dir, clock)
	require.NoError(t, err)

	assert.Equal(t, []types.YieldRow{
		{Date: "2024-05-30", DailyKWh: 3, TotalKWh: 3},
		{Date: "2024-05-31", DailyKWh: 7, TotalKWh: 10},
		{Date: "2025-06-02", DailyKWh: 4, TotalKWh: 14},
		{Date: "2025-06-03", DailyKWh: 6, TotalKWh: 20},
	}, store.history)
	assert.Equal(t, 2, report.KeptDays)
	assert.Equal(t, 2, report.Days)
	assert.InDelta(t, 20.0, report.NewTotalKWh, 1e-9)
}

func TestRebuildWithoutSamplesKeepsHistory(t *testing.T) {
	history := []types.YieldRow{{Date: "2024-05-30", DailyKWh: 3, TotalKWh: 3}}
	store := &fakeStore{history: history}

	report, err := RebuildYieldHistory(store, t.TempDir(), clock)
	require.NoError(t, err)
	assert.Equal(t, history, store.history)
	assert.Equal(t, 1, report.KeptDays)
	assert.InDelta(t, 0.0, report.DeltaPct, 1e-9)
}

func TestRebuildFailureKeepsTableAndReports(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{
		dailyErr: errors.New("disk gone"),
		history:  []types.YieldRow{{Date: "2025-06-01", DailyKWh: 10, TotalKWh: 10}},
	}

	report, err := RebuildYieldHistory(store, dir, clock)
	require.Error(t, err)
	assert.Equal(t, 0, store.replaced)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Contains(t, report.Error, "disk gone")
	assert.Equal(t, StatusFailed, readReport(t, dir).Status)
}

func TestDeltaPctWithoutHistory(t *testing.T) {
	assert.Equal(t, 0.0, deltaPct(0, 12))
	assert.InDelta(t, -50.0, deltaPct(10, 5), 1e-9)
}

func TestValidatorRunsOnceThenStops(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{daily: []types.DailyEnergy{{Date: "2025-06-01", PVKWh: 3, Samples: 2}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := &Validator{Store: store, Dir: dir, Interval: time.Hour, Clock: clock}
	require.NoError(t, v.Run(ctx))
	assert.Equal(t, 1, store.replaced)
}

func TestAggregateAndCleanupDefaultsRetention(t *testing.T) {
	store := &fakeStore{cleanupTo: types.CleanupResult{PV: 3}}

	res, err := AggregateAndCleanup(store, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.PV)

	_, err = AggregateAndCleanup(store, 30)
	require.NoError(t, err)
	assert.Equal(t, []int{DefaultRetentionDays, 30}, store.cleanups)
}

func TestRunPeriodicRecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	runPeriodic(ctx, time.Millisecond, func() {
		calls++
		if calls == 1 {
			panic("boom")
		}
		cancel()
	})
	assert.GreaterOrEqual(t, calls, 2)
}
