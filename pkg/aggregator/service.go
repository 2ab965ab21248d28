package aggregator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/NotCoffee418/homedash/pkg/energy"
	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/pathing"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	BackupFile = "ertrag_history_backup.json"
	ReportFile = "ertrag_validation.json"

	DefaultValidateInterval = 7 * 24 * time.Hour
	DefaultRetentionDays    = 365
	retentionInterval       = 24 * time.Hour
)

var log = logging.For("aggregator")

// RebuildYieldHistory recomputes yield_history from the raw PV samples.
// The previous table is backed up to dir first and a report is written
// to dir whether or not the rebuild succeeds.
func RebuildYieldHistory(store YieldStore, dir string, clock timebase.Clock) (Report, error) {
	if clock == nil {
		clock = timebase.SystemClock{}
	}
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: timebase.Format(clock.Now()),
		Status:    StatusOK,
	}

	err := rebuild(store, dir, clock, &report)
	if err != nil {
		err = faults.Wrap(faults.Validator, err)
		report.Status = StatusFailed
		report.Error = faults.Message(err)
	}
	report.FinishedAt = timebase.Format(clock.Now())

	if werr := writeJSON(filepath.Join(dir, ReportFile), report); werr != nil && err == nil {
		err = faults.Wrapf(faults.CacheIO, werr, "write yield report")
	}
	return report, err
}

func rebuild(store YieldStore, dir string, clock timebase.Clock, report *Report) error {
	old, err := store.YieldHistory()
	if err != nil {
		return err
	}
	report.OldDays = len(old)
	if len(old) > 0 {
		report.OldTotalKWh = units.Round(old[len(old)-1].TotalKWh, 3)
	}

	err = writeJSON(filepath.Join(dir, BackupFile), backup{
		CreatedAt: timebase.Format(clock.Now()),
		Rows:      nonNil(old),
	})
	if err != nil {
		return faults.Wrapf(faults.CacheIO, err, "write yield backup")
	}

	daily, err := store.DailyTotals(0)
	if err != nil {
		return err
	}
	kept := olderThanSamples(old, daily)
	rows := energy.Cumulative(daily)
	report.Days = len(rows)
	report.KeptDays = len(kept)
	report.DroppedDays = len(daily) - len(rows)

	if len(kept) > 0 {
		offset := kept[len(kept)-1].TotalKWh
		for i := range rows {
			rows[i].TotalKWh += offset
		}
	}
	rows = append(kept, rows...)
	if len(rows) > 0 {
		report.NewTotalKWh = units.Round(rows[len(rows)-1].TotalKWh, 3)
	}
	report.DeltaPct = deltaPct(report.OldTotalKWh, report.NewTotalKWh)

	return store.ReplaceYieldHistory(rows)
}

// olderThanSamples returns the history rows dated before the first day that
// still has raw samples. Retention removes those samples, so these rows
// cannot be recomputed and are carried over as they are.
func olderThanSamples(old []types.YieldRow, daily []types.DailyEnergy) []types.YieldRow {
	if len(daily) == 0 {
		return append([]types.YieldRow{}, old...)
	}
	first := daily[0].Date
	for _, d := range daily[1:] {
		if d.Date < first {
			first = d.Date
		}
	}
	kept := []types.YieldRow{}
	for _, r := range old {
		if r.Date < first {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Date < kept[j].Date })
	return kept
}

// deltaPct is the relative change of the total in percent. With no old
// total there is nothing to compare against and the delta is 0.
func deltaPct(oldTotal, newTotal float64) float64 {
	if oldTotal <= 0 {
		return 0
	}
	return units.Round((newTotal-oldTotal)/oldTotal*100, 2)
}

func nonNil(rows []types.YieldRow) []types.YieldRow {
	if rows == nil {
		return []types.YieldRow{}
	}
	return rows
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return pathing.WriteFileAtomic(path, b)
}

// Validator rebuilds the yield history at startup and then on every
// interval until its context ends.
type Validator struct {
	Store    YieldStore
	Dir      string
	Interval time.Duration
	Clock    timebase.Clock
}

func (v *Validator) Run(ctx context.Context) error {
	interval := v.Interval
	if interval <= 0 {
		interval = DefaultValidateInterval
	}
	runPeriodic(ctx, interval, func() {
		report, err := RebuildYieldHistory(v.Store, v.Dir, v.Clock)
		entry := log.WithFields(logrus.Fields{
			"run_id":    report.RunID,
			"days":      report.Days,
			"total_kwh": report.NewTotalKWh,
			"delta_pct": report.DeltaPct,
		})
		if err != nil {
			entry.WithError(err).Error("Yield history validation failed")
			return
		}
		entry.Info("Yield history validated")
	})
	return nil
}

// Retention deletes rows past the retention horizon once a day.
type Retention struct {
	Store         RetentionStore
	RetentionDays int
}

func (r *Retention) Run(ctx context.Context) error {
	runPeriodic(ctx, retentionInterval, func() {
		if _, err := AggregateAndCleanup(r.Store, r.RetentionDays); err != nil {
			log.WithError(err).Error("Retention cleanup failed")
		}
	})
	return nil
}

// AggregateAndCleanup applies the retention horizon to both sample tables.
func AggregateAndCleanup(store RetentionStore, retentionDays int) (types.CleanupResult, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	res, err := store.CleanupOld(retentionDays)
	if err != nil {
		return res, err
	}
	log.Debugf("Retention pass removed %d pv and %d heating rows", res.PV, res.Heating)
	return res, nil
}

// runPeriodic calls fn immediately and then every interval until ctx is
// done. A panic in fn is logged and the loop continues.
func runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		safeCall(fn)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered from panic in background task: %v", r)
		}
	}()
	fn()
}
