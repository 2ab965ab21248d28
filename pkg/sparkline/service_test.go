package sparkline

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

type fakeReader struct {
	pv      []types.PVSample
	heating []types.HeatingSample
	err     error
	reads   int
}

func (f *fakeReader) RecentPV(hours float64, limit int) ([]types.PVSample, error) {
	f.reads++
	return f.pv, f.err
}

func (f *fakeReader) RecentHeating(hours float64, limit int) ([]types.HeatingSample, error) {
	return f.heating, f.err
}

var now = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

func at(s string) time.Time {
	t, err := timebase.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBinKey(t *testing.T) {
	assert.Equal(t, at("2025-06-16 10:15:00"), BinKey(at("2025-06-16 10:29:59.5")))
	assert.Equal(t, at("2025-06-16 10:30:00"), BinKey(at("2025-06-16 10:30:00")))
	assert.Equal(t, at("2025-06-16 10:00:00"), BinKey(at("2025-06-16 10:07:12")))
}

func TestBinAveragesPerQuarter(t *testing.T) {
	points := []Point{
		{Time: at("2025-06-16 10:16:00"), Value: 3},
		{Time: at("2025-06-16 10:01:00"), Value: 1},
		{Time: at("2025-06-16 10:14:00"), Value: 2},
	}
	got := Bin(points)
	require.Len(t, got, 2)
	assert.Equal(t, at("2025-06-16 10:00:00"), got[0].Time)
	assert.Equal(t, 1.5, got[0].Value)
	assert.Equal(t, 3.0, got[1].Value)
}

func TestSmoothCentredAndTrimmed(t *testing.T) {
	var points []Point
	for i, v := range []float64{0, 10, 20, 30, 40, 50} {
		points = append(points, Point{Time: now.Add(time.Duration(i) * BinSize), Value: v})
	}
	got := Smooth(points, 5)
	require.Len(t, got, 6)
	assert.InDelta(t, 10.0, got[0].Value, 1e-9)
	assert.InDelta(t, 15.0, got[1].Value, 1e-9)
	assert.InDelta(t, 20.0, got[2].Value, 1e-9)
	assert.InDelta(t, 30.0, got[3].Value, 1e-9)
	assert.InDelta(t, 40.0, got[5].Value, 1e-9)
}

func TestFiltersApplied(t *testing.T) {
	pv := pvPoints([]types.PVSample{
		{Timestamp: "2025-06-16 10:00:00", PVPowerKW: types.Float(2500)},
		{Timestamp: "2025-06-16 10:01:00", PVPowerKW: types.Float(-0.5)},
		{Timestamp: "2025-06-16 10:02:00", PVPowerKW: types.Float(-0.1)},
		{Timestamp: "2025-06-16 10:03:00"},
	})
	require.Len(t, pv, 2)
	assert.Equal(t, 2.5, pv[0].Value)
	assert.Equal(t, -0.1, pv[1].Value)

	temp := tempPoints([]types.HeatingSample{
		{Timestamp: "2025-06-16 10:00:00", OutdoorC: types.Float(-41)},
		{Timestamp: "2025-06-16 10:01:00", OutdoorC: types.Float(61)},
		{Timestamp: "2025-06-16 10:02:00", OutdoorC: types.Float(21.5)},
	})
	require.Len(t, temp, 1)
	assert.Equal(t, 21.5, temp[0].Value)
}

func TestRefreshNeverErasesCachedSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparkline_cache.json")
	seed := `{"pv": [["2025-06-16T10:00:00", 1.5], ["2025-06-16T10:15:00", 2.0]], "temp": []}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0644))

	store := &fakeReader{}
	c := New(path, store, timebase.NewFixedClock(now))
	loaded, err := c.Load()
	require.NoError(t, err)
	require.Len(t, loaded.PV, 2)

	_, err = c.Refresh(true)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Series
	require.NoError(t, json.Unmarshal(b, &onDisk))
	require.Len(t, onDisk.PV, 2)
	assert.Equal(t, 1.5, onDisk.PV[0].Value)
	assert.Len(t, c.Series().PV, 2)
}

func TestRefreshReadErrorKeepsSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparkline_cache.json")
	c := New(path, &fakeReader{err: errors.New("locked")}, timebase.NewFixedClock(now))
	c.series = Series{PV: []Point{{Time: now.Add(-time.Hour), Value: 1}}}

	got, err := c.Refresh(true)
	require.NoError(t, err)
	assert.Len(t, got.PV, 1)
}

func TestRefreshPersistsAndMergesPerSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparkline_cache.json")
	store := &fakeReader{
		pv: []types.PVSample{
			{Timestamp: "2025-06-16 11:00:00", PVPowerKW: types.Float(2)},
			{Timestamp: "2025-06-16 11:05:00", PVPowerKW: types.Float(4)},
		},
	}
	c := New(path, store, timebase.NewFixedClock(now))
	c.series = Series{
		PV:   []Point{{Time: now.Add(-50 * time.Hour), Value: 9}},
		Temp: []Point{{Time: now.Add(-time.Hour), Value: 18}},
	}

	got, err := c.Refresh(true)
	require.NoError(t, err)
	require.Len(t, got.PV, 1)
	assert.Equal(t, at("2025-06-16 11:00:00"), got.PV[0].Time)
	assert.Equal(t, 3.0, got.PV[0].Value)
	require.Len(t, got.Temp, 1)
	assert.Equal(t, 18.0, got.Temp[0].Value)

	reloaded := New(path, store, nil)
	disk, err := reloaded.Load()
	require.NoError(t, err)
	assert.Len(t, disk.PV, 1)
	assert.Len(t, disk.Temp, 1)
}

func TestRefreshDebounced(t *testing.T) {
	clock := timebase.NewFixedClock(now)
	store := &fakeReader{}
	c := New(filepath.Join(t.TempDir(), "c.json"), store, clock)

	_, _ = c.Refresh(false)
	_, _ = c.Refresh(false)
	assert.Equal(t, 1, store.reads)

	clock.Advance(RefreshDebounce)
	_, _ = c.Refresh(false)
	assert.Equal(t, 2, store.reads)

	_, _ = c.Refresh(true)
	assert.Equal(t, 3, store.reads)
}

func TestLoadMissingFile(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "none.json"), &fakeReader{}, nil)
	s, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, s.PV)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err := New(path, &fakeReader{}, nil).Load()
	assert.Error(t, err)
}

func TestRefreshAfterDelay(t *testing.T) {
	assert.LessOrEqual(t, WarmupDelay, 5*time.Second)

	store := &fakeReader{pv: []types.PVSample{{Timestamp: "2025-06-16 11:00:00", PVPowerKW: types.Float(2)}}}
	c := New(filepath.Join(t.TempDir(), "cache.json"), store, timebase.NewFixedClock(now))

	c.RefreshAfter(context.Background(), 10*time.Millisecond)
	assert.Equal(t, 1, store.reads)
	assert.NotEmpty(t, c.Series().PV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.RefreshAfter(ctx, time.Hour)
	assert.Equal(t, 1, store.reads)
}
