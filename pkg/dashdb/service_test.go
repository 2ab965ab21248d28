package dashdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/homedash/pkg/normalizer"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *timebase.FixedClock) {
	t.Helper()
	clock := timebase.NewFixedClock(testNow)
	s, err := Open(filepath.Join(t.TempDir(), "data.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func pv(ts string, kw float64) types.PVSample {
	return types.PVSample{Timestamp: ts, PVPowerKW: types.Float(kw)}
}

func TestOpenCreatesSchema(t *testing.T) {
	s, _ := openTestStore(t)

	var tables []string
	require.NoError(t, s.DB().Select(&tables,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('pv', 'heating', 'yield_history') ORDER BY name"))
	assert.Equal(t, []string{"heating", "pv", "yield_history"}, tables)

	var mode string
	require.NoError(t, s.DB().Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	clock := timebase.NewFixedClock(testNow)

	s, err := Open(path, clock)
	require.NoError(t, err)
	require.NoError(t, s.InsertPV(pv("2025-06-15 12:00:00", 1.5)))
	require.NoError(t, s.Close())

	s, err = Open(path, clock)
	require.NoError(t, err)
	defer s.Close()
	last, err := s.LastPV()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 1.5, *last.PVPowerKW)
}

func TestInsertPVUpserts(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2025-06-15T12:00:00Z", 1.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-15 12:00:00", 2.5)))

	n, err := s.count("pv")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, err := s.LastPV()
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15 12:00:00", last.Timestamp)
	assert.Equal(t, 2.5, *last.PVPowerKW)
	assert.Nil(t, last.GridPowerKW)
}

func TestInsertSkipsEmptyAndUntimed(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(types.PVSample{Timestamp: "2025-06-15 12:00:00"}))
	require.NoError(t, s.InsertPV(types.PVSample{PVPowerKW: types.Float(1)}))
	require.NoError(t, s.InsertPV(pv("not a time", 1)))
	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2025-06-15 12:00:00"}))

	last, err := s.LastPV()
	require.NoError(t, err)
	assert.Nil(t, last)
	heat, err := s.LastHeating()
	require.NoError(t, err)
	assert.Nil(t, heat)
}

func TestHeatingAuxRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	sample := types.HeatingSample{
		Timestamp:  "2025-06-15 12:00:00",
		BmkKesselC: types.Float(61.5),
		Aux:        map[string]interface{}{"betriebsphase": "Heizen"},
	}
	require.NoError(t, s.InsertHeating(sample))

	got, err := s.LastHeating()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 61.5, *got.BmkKesselC)
	assert.Equal(t, "Heizen", got.Aux["betriebsphase"])
}

func TestHeatingUnparseableTokenStored(t *testing.T) {
	s, _ := openTestStore(t)

	sample := normalizer.NormalizeHeating(types.Raw{
		"timestamp":        "2025-06-15 12:00:00",
		"kesseltemperatur": "Err",
		"aussentemperatur": 5.0,
	})
	require.NoError(t, s.InsertHeating(sample))

	var raw string
	require.NoError(t, s.DB().Get(&raw, "SELECT raw_json FROM heating"))
	assert.JSONEq(t, `{"kesseltemperatur":"Err"}`, raw)

	got, err := s.LastHeating()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.BmkKesselC)
	assert.Equal(t, "Err", got.Aux["kesseltemperatur"])
}

func TestRecentPVWindowAndLimit(t *testing.T) {
	s, _ := openTestStore(t)

	for i, ts := range []string{
		"2025-06-15 08:00:00",
		"2025-06-16 09:00:00",
		"2025-06-16 10:00:00",
		"2025-06-16 11:00:00",
		"2025-06-16 11:30:00",
	} {
		require.NoError(t, s.InsertPV(pv(ts, float64(i))))
	}

	all, err := s.RecentPV(0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "2025-06-15 08:00:00", all[0].Timestamp)

	window, err := s.RecentPV(3, 0)
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, "2025-06-16 09:00:00", window[0].Timestamp)

	capped, err := s.RecentPV(0, 2)
	require.NoError(t, err)
	require.Len(t, capped, 2)
	assert.Equal(t, "2025-06-16 11:00:00", capped[0].Timestamp)
	assert.Equal(t, "2025-06-16 11:30:00", capped[1].Timestamp)
}

func TestRecentHeatingAscending(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2025-06-16 11:00:00", OutdoorC: types.Float(12)}))
	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2025-06-16 10:00:00", OutdoorC: types.Float(10)}))

	rows, err := s.RecentHeating(24, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 10.0, *rows[0].OutdoorC)
	assert.Equal(t, 12.0, *rows[1].OutdoorC)
}

func TestLatestTimestampAcrossTables(t *testing.T) {
	s, _ := openTestStore(t)

	_, ok, err := s.LatestTimestamp()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertPV(pv("2025-06-16 10:00:00", 1)))
	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2025-06-16 11:00:00", OutdoorC: types.Float(3)}))

	ts, ok, err := s.LatestTimestamp()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-06-16 11:00:00", ts)
}

func TestHourlyAveragesMergesTables(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2025-06-16 10:00:00", 2)))
	require.NoError(t, s.InsertPV(pv("2025-06-16 10:30:00", 4)))
	require.NoError(t, s.InsertPV(pv("2025-06-16 11:10:00", 1)))
	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2025-06-16 10:15:00", BmkKesselC: types.Float(40)}))

	rows, err := s.HourlyAverages(24)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "2025-06-16 10:00:00", rows[0].Hour)
	assert.InDelta(t, 3.0, *rows[0].PVPowerKW, 1e-9)
	assert.InDelta(t, 40.0, *rows[0].BmkKesselC, 1e-9)
	assert.Nil(t, rows[0].GridPowerKW)

	assert.Equal(t, "2025-06-16 11:00:00", rows[1].Hour)
	assert.Nil(t, rows[1].BmkKesselC)
}

func TestHourlyAveragesSingleRowAndWindow(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2025-06-16 10:20:00", 1.5)))
	require.NoError(t, s.InsertPV(pv("2025-06-14 08:45:00", 3)))

	rows, err := s.HourlyAverages(24)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-16 10:00:00", rows[0].Hour)
	assert.InDelta(t, 1.5, *rows[0].PVPowerKW, 1e-9)

	rows, err = s.HourlyAverages(0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-06-14 08:00:00", rows[0].Hour)
}

func TestDailyTotalsIntraDay(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2025-06-15 12:00:00", 2.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-15 13:00:00", 4.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-15 14:00:00", 4.0)))

	daily, err := s.DailyTotals(2)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "2025-06-15", daily[0].Date)
	assert.InDelta(t, 7.0, daily[0].PVKWh, 1e-9)
	assert.Equal(t, 2, daily[0].Samples)
}

func TestDailyTotalsMidnightSplitAndGap(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2025-06-14 12:00:00", 2.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-14 20:00:00", 4.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-15 23:00:00", 2.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-16 01:00:00", 4.0)))

	daily, err := s.DailyTotals(0)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2025-06-15", daily[0].Date)
	assert.InDelta(t, 2.5, daily[0].PVKWh, 1e-9)
	assert.Equal(t, "2025-06-16", daily[1].Date)
	assert.InDelta(t, 3.5, daily[1].PVKWh, 1e-9)
}

func TestMonthlyTotals(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2025-05-20 12:00:00", 2.0)))
	require.NoError(t, s.InsertPV(pv("2025-05-20 13:00:00", 2.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-15 12:00:00", 1.0)))
	require.NoError(t, s.InsertPV(pv("2025-06-15 14:00:00", 1.0)))

	empty, err := s.MonthlyTotals(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	months, err := s.MonthlyTotals(2)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "2025-05-01", months[0].Month)
	assert.InDelta(t, 2.0, months[0].PVKWh, 1e-9)
	assert.Equal(t, "2025-06-01", months[1].Month)
	assert.InDelta(t, 2.0, months[1].PVKWh, 1e-9)

	last, err := s.MonthlyTotals(1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "2025-06-01", last[0].Month)
}

func TestCleanupOldKeepsBoundary(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.InsertPV(pv("2024-06-16 11:59:59", 1)))
	require.NoError(t, s.InsertPV(pv("2024-06-16 12:00:00", 1)))
	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2024-01-01 00:00:00", OutdoorC: types.Float(1)}))
	require.NoError(t, s.InsertHeating(types.HeatingSample{Timestamp: "2025-06-16 00:00:00", OutdoorC: types.Float(1)}))

	res, err := s.CleanupOld(365)
	require.NoError(t, err)
	assert.Equal(t, types.CleanupResult{PV: 1, Heating: 1}, res)

	rows, err := s.RecentPV(0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-06-16 12:00:00", rows[0].Timestamp)

	_, err = s.CleanupOld(0)
	assert.Error(t, err)
}

func TestYieldHistoryReplace(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.ReplaceYieldHistory([]types.YieldRow{
		{Date: "2025-06-01", DailyKWh: 1, TotalKWh: 1},
	}))
	rows := []types.YieldRow{
		{Date: "2025-06-01", DailyKWh: 5, TotalKWh: 5},
		{Date: "2025-06-03", DailyKWh: 7, TotalKWh: 12},
	}
	require.NoError(t, s.ReplaceYieldHistory(rows))

	got, err := s.YieldHistory()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestHasPVSignal(t *testing.T) {
	s, _ := openTestStore(t)

	found, err := s.HasPVSignal()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.InsertPV(pv("2025-06-16 10:00:00", 0)))
	found, err = s.HasPVSignal()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.InsertPV(pv("2025-06-16 10:01:00", 0.5)))
	found, err = s.HasPVSignal()
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.InsertPV(pv("2025-06-16 10:00:00", 1))
	assert.Error(t, err)
}

func TestSharedHandle(t *testing.T) {
	s, _ := openTestStore(t)
	SetShared(s)

	got, err := Shared()
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, CloseShared())
	require.NoError(t, CloseShared())
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ", nil)
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestSeedFromCSV(t *testing.T) {
	s, _ := openTestStore(t)
	dir := t.TempDir()

	writeFile(t, dir, PVSeedFile,
		"Zeitstempel;PV-Leistung (W);Batterieladestand (%)\n"+
			"2025-06-15 12:00:00;2000;55,5\n"+
			"2025-06-15 12:05:00;2500;56\n"+
			";100;50\n")
	writeFile(t, dir, HeatingSeedFile,
		"Zeitstempel,Kesseltemperatur,Außentemperatur,Betriebsphase\n"+
			"2025-06-15 12:00:00,65.5,18,Heizen\n")

	res, err := s.SeedFromCSV(dir)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{PV: 2, Heating: 1}, res)

	rows, err := s.RecentPV(0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.InDelta(t, 2.0, *rows[0].PVPowerKW, 1e-9)
	assert.InDelta(t, 55.5, *rows[0].BatterySocPct, 1e-9)

	heat, err := s.LastHeating()
	require.NoError(t, err)
	assert.Equal(t, 65.5, *heat.BmkKesselC)
	assert.Equal(t, "Heizen", heat.Aux["Betriebsphase"])

	again, err := s.SeedFromCSV(dir)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, again)
}

func TestSeedReimportsFlatPV(t *testing.T) {
	s, _ := openTestStore(t)
	dir := t.TempDir()

	require.NoError(t, s.InsertPV(pv("2025-06-01 12:00:00", 0)))
	require.NoError(t, s.InsertPV(pv("2025-06-01 12:05:00", 0)))
	writeFile(t, dir, PVSeedFile, "timestamp,pv_power_kw\n2025-06-15 12:00:00,1.25\n")

	res, err := s.SeedFromCSV(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PV)

	rows, err := s.RecentPV(0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-15 12:00:00", rows[0].Timestamp)
}

func TestSeedMissingFilesIsNoop(t *testing.T) {
	s, _ := openTestStore(t)
	res, err := s.SeedFromCSV(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)
}
