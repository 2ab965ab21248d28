// Energy turns raw PV power samples into daily and monthly energy by
// trapezoidal integration.
package energy

import (
	"sort"
	"time"

	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
)

// MaxSegment is the logger gap guard: longer segments carry no energy.
const MaxSegment = 6 * time.Hour

// PowerPoint is one (timestamp, kW) sample.
type PowerPoint struct {
	Time time.Time
	KW   float64
}

type dayBucket struct {
	kwh     float64
	samples int
}

// PointsFromRows parses stored (timestamp, pv_power_kw) pairs, dropping
// rows with a missing value or an unparseable timestamp.
func PointsFromRows(rows []types.PVSample) []PowerPoint {
	out := make([]PowerPoint, 0, len(rows))
	for _, row := range rows {
		if row.PVPowerKW == nil || !units.IsFinite(*row.PVPowerKW) {
			continue
		}
		t, err := timebase.Parse(row.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, PowerPoint{Time: t, KW: *row.PVPowerKW})
	}
	return out
}

// DailyFromPoints integrates an ascending series into per-day energy.
// Segments that cross midnight are split at the boundary with a linearly
// interpolated power; every emitted sub-segment counts as one sample for
// its day. Days without any accepted sub-segment are absent.
func DailyFromPoints(points []PowerPoint) []types.DailyEnergy {
	if len(points) < 2 {
		return nil
	}

	buckets := make(map[string]*dayBucket)
	add := func(t0 time.Time, p0 float64, t1 time.Time, p1 float64) {
		key := timebase.FormatDate(t0)
		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{}
			buckets[key] = b
		}
		b.kwh += (p0 + p1) / 2 * t1.Sub(t0).Hours()
		b.samples++
	}

	for i := 1; i < len(points); i++ {
		t0, p0 := points[i-1].Time, points[i-1].KW
		t1, p1 := points[i].Time, points[i].KW

		span := t1.Sub(t0)
		if span <= 0 || span > MaxSegment {
			continue
		}

		if timebase.FormatDate(t0) == timebase.FormatDate(t1) {
			add(t0, p0, t1, p1)
			continue
		}

		// Split at each midnight between t0 and t1.
		curT, curP := t0, p0
		for tb := timebase.NextMidnight(curT); tb.Before(t1); tb = timebase.NextMidnight(curT) {
			pb := p0 + (p1-p0)*float64(tb.Sub(t0))/float64(span)
			add(curT, curP, tb, pb)
			curT, curP = tb, pb
		}
		if t1.After(curT) {
			add(curT, curP, t1, p1)
		}
	}

	out := make([]types.DailyEnergy, 0, len(buckets))
	for date, b := range buckets {
		out = append(out, types.DailyEnergy{Date: date, PVKWh: b.kwh, Samples: b.samples})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// DailyFromRows is PointsFromRows followed by DailyFromPoints.
func DailyFromRows(rows []types.PVSample) []types.DailyEnergy {
	return DailyFromPoints(PointsFromRows(rows))
}

// MonthlyFromDaily buckets daily energy by the first of the month and
// returns the last months buckets in ascending order.
func MonthlyFromDaily(daily []types.DailyEnergy, months int) []types.MonthlyEnergy {
	if months <= 0 || len(daily) == 0 {
		return []types.MonthlyEnergy{}
	}
	byMonth := make(map[string]*types.MonthlyEnergy)
	for _, d := range daily {
		if len(d.Date) < 7 {
			continue
		}
		key := d.Date[:7] + "-01"
		m, ok := byMonth[key]
		if !ok {
			m = &types.MonthlyEnergy{Month: key}
			byMonth[key] = m
		}
		m.PVKWh += d.PVKWh
		m.Days++
	}

	out := make([]types.MonthlyEnergy, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	if len(out) > months {
		out = out[len(out)-months:]
	}
	return out
}

// Cumulative turns daily values into yield history rows. Days with
// daily_kwh <= 0 are dropped; the running total never decreases.
func Cumulative(daily []types.DailyEnergy) []types.YieldRow {
	sorted := make([]types.DailyEnergy, len(daily))
	copy(sorted, daily)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	rows := make([]types.YieldRow, 0, len(sorted))
	total := 0.0
	for _, d := range sorted {
		if d.PVKWh <= 0 || !units.IsFinite(d.PVKWh) {
			continue
		}
		total += d.PVKWh
		rows = append(rows, types.YieldRow{Date: d.Date, DailyKWh: d.PVKWh, TotalKWh: total})
	}
	return rows
}
