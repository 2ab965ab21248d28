package dashdb

import (
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/NotCoffee418/homedash/pkg/energy"
	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/jmoiron/sqlx"
)

const pvColumns = "timestamp, pv_power_kw, grid_power_kw, battery_power_kw, battery_soc_pct, load_power_kw"

const heatingColumns = "timestamp, bmk_kessel_c, outdoor_c, buf_top_c, buf_mid_c, buf_bottom_c, bmk_warmwasser_c, raw_json"

const upsertPV = `INSERT INTO pv (` + pvColumns + `, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(timestamp) DO UPDATE SET
		pv_power_kw = excluded.pv_power_kw,
		grid_power_kw = excluded.grid_power_kw,
		battery_power_kw = excluded.battery_power_kw,
		battery_soc_pct = excluded.battery_soc_pct,
		load_power_kw = excluded.load_power_kw,
		created_at = excluded.created_at`

const upsertHeating = `INSERT INTO heating (` + heatingColumns + `, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(timestamp) DO UPDATE SET
		bmk_kessel_c = excluded.bmk_kessel_c,
		outdoor_c = excluded.outdoor_c,
		buf_top_c = excluded.buf_top_c,
		buf_mid_c = excluded.buf_mid_c,
		buf_bottom_c = excluded.buf_bottom_c,
		bmk_warmwasser_c = excluded.bmk_warmwasser_c,
		raw_json = excluded.raw_json,
		created_at = excluded.created_at`

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// InsertPV upserts one sample keyed by its timestamp. Samples without a
// valid timestamp or without any value are skipped.
func (s *Store) InsertPV(sample types.PVSample) error {
	ts, ok := storable(sample.Timestamp, sample.IsEmpty())
	if !ok {
		return nil
	}
	return s.write(func() error {
		return s.execPV(s.db, ts, sample)
	})
}

func (s *Store) execPV(ex execer, ts string, sample types.PVSample) error {
	_, err := ex.Exec(upsertPV,
		ts,
		nullFloat(sample.PVPowerKW),
		nullFloat(sample.GridPowerKW),
		nullFloat(sample.BatteryPowerKW),
		nullFloat(sample.BatterySocPct),
		nullFloat(sample.LoadPowerKW),
		timebase.Format(s.clock.Now()),
	)
	return err
}

// InsertHeating upserts one heating sample. Aux fields are kept as JSON.
func (s *Store) InsertHeating(sample types.HeatingSample) error {
	ts, ok := storable(sample.Timestamp, sample.IsEmpty())
	if !ok {
		return nil
	}
	return s.write(func() error {
		return s.execHeating(s.db, ts, sample)
	})
}

func (s *Store) execHeating(ex execer, ts string, sample types.HeatingSample) error {
	var raw sql.NullString
	if len(sample.Aux) > 0 {
		b, err := json.Marshal(sample.Aux)
		if err != nil {
			return err
		}
		raw = sql.NullString{String: string(b), Valid: true}
	}
	_, err := ex.Exec(upsertHeating,
		ts,
		nullFloat(sample.BmkKesselC),
		nullFloat(sample.OutdoorC),
		nullFloat(sample.BufTopC),
		nullFloat(sample.BufMidC),
		nullFloat(sample.BufBottomC),
		nullFloat(sample.BmkWarmwasserC),
		raw,
		timebase.Format(s.clock.Now()),
	)
	return err
}

func storable(ts string, empty bool) (string, bool) {
	if empty || ts == "" {
		return "", false
	}
	return timebase.Normalize(ts)
}

// LastPV returns the newest PV row, or nil when the table is empty.
func (s *Store) LastPV() (*types.PVSample, error) {
	var row types.PVSample
	err := s.db.Get(&row, "SELECT "+pvColumns+" FROM pv ORDER BY timestamp DESC LIMIT 1")
	if err != nil {
		return nil, s.readErr(err)
	}
	return &row, nil
}

func (s *Store) LastHeating() (*types.HeatingSample, error) {
	var row heatingRow
	err := s.db.Get(&row, "SELECT "+heatingColumns+" FROM heating ORDER BY timestamp DESC LIMIT 1")
	if err != nil {
		return nil, s.readErr(err)
	}
	sample := row.sample()
	return &sample, nil
}

// RecentPV returns rows newer than now-hours in ascending order. hours <= 0
// means no lower bound; limit > 0 keeps only the newest limit rows.
func (s *Store) RecentPV(hours float64, limit int) ([]types.PVSample, error) {
	query, args := recentQuery("pv", pvColumns, s.cutoff(hours), limit)
	var rows []types.PVSample
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, s.readErr(err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *Store) RecentHeating(hours float64, limit int) ([]types.HeatingSample, error) {
	query, args := recentQuery("heating", heatingColumns, s.cutoff(hours), limit)
	var rows []heatingRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, s.readErr(err)
	}
	out := make([]types.HeatingSample, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].sample()
	}
	return out, nil
}

func (s *Store) cutoff(hours float64) string {
	if hours <= 0 {
		return ""
	}
	since := s.clock.Now().Add(-time.Duration(hours * float64(time.Hour)))
	return timebase.Format(since)
}

// recentQuery selects newest first so LIMIT keeps the latest rows.
func recentQuery(table, columns, cutoff string, limit int) (string, []interface{}) {
	query := "SELECT " + columns + " FROM " + table
	var args []interface{}
	if cutoff != "" {
		query += " WHERE timestamp >= ?"
		args = append(args, cutoff)
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return query, args
}

func (r heatingRow) sample() types.HeatingSample {
	sample := r.HeatingSample
	if r.RawJSON.Valid && r.RawJSON.String != "" {
		var aux map[string]interface{}
		if err := json.Unmarshal([]byte(r.RawJSON.String), &aux); err == nil && len(aux) > 0 {
			sample.Aux = aux
		}
	}
	return sample
}

// LatestTimestamp is the newest timestamp across both tables.
func (s *Store) LatestTimestamp() (string, bool, error) {
	var ts sql.NullString
	err := s.db.Get(&ts, `SELECT MAX(ts) FROM (
		SELECT MAX(timestamp) AS ts FROM pv
		UNION ALL
		SELECT MAX(timestamp) AS ts FROM heating
	)`)
	if err != nil {
		return "", false, s.readErr(err)
	}
	return ts.String, ts.Valid, nil
}

// hourBucket truncates a stored timestamp to its hour.
const hourBucket = "strftime('%Y-%m-%d %H:00:00', timestamp)"

// HourlyAverages averages every numeric column of both tables per hour
// over the last hours, ascending by hour. Both reads share one snapshot.
func (s *Store) HourlyAverages(hours float64) ([]types.HourlyAverage, error) {
	cutoff := s.cutoff(hours)
	if cutoff == "" {
		cutoff = "0000"
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, s.readErr(err)
	}
	defer tx.Rollback()

	var pvRows []pvHourRow
	err = tx.Select(&pvRows, `SELECT
			`+hourBucket+` AS hour,
			AVG(pv_power_kw) AS pv_power_kw,
			AVG(grid_power_kw) AS grid_power_kw,
			AVG(battery_power_kw) AS battery_power_kw,
			AVG(battery_soc_pct) AS battery_soc_pct,
			AVG(load_power_kw) AS load_power_kw
		FROM pv WHERE timestamp >= ?
		GROUP BY hour`, cutoff)
	if err != nil {
		return nil, s.readErr(err)
	}

	var heatRows []heatingHourRow
	err = tx.Select(&heatRows, `SELECT
			`+hourBucket+` AS hour,
			AVG(bmk_kessel_c) AS bmk_kessel_c,
			AVG(outdoor_c) AS outdoor_c,
			AVG(buf_top_c) AS buf_top_c,
			AVG(buf_mid_c) AS buf_mid_c,
			AVG(buf_bottom_c) AS buf_bottom_c,
			AVG(bmk_warmwasser_c) AS bmk_warmwasser_c
		FROM heating WHERE timestamp >= ?
		GROUP BY hour`, cutoff)
	if err != nil {
		return nil, s.readErr(err)
	}

	byHour := make(map[string]*types.HourlyAverage)
	at := func(hour string) *types.HourlyAverage {
		if h, ok := byHour[hour]; ok {
			return h
		}
		h := &types.HourlyAverage{Hour: hour}
		byHour[hour] = h
		return h
	}
	for _, r := range pvRows {
		if !r.Hour.Valid {
			continue
		}
		h := at(r.Hour.String)
		h.PVPowerKW = nullPtr(r.PVPowerKW)
		h.GridPowerKW = nullPtr(r.GridPowerKW)
		h.BatteryPowerKW = nullPtr(r.BatteryPowerKW)
		h.BatterySocPct = nullPtr(r.BatterySocPct)
		h.LoadPowerKW = nullPtr(r.LoadPowerKW)
	}
	for _, r := range heatRows {
		if !r.Hour.Valid {
			continue
		}
		h := at(r.Hour.String)
		h.BmkKesselC = nullPtr(r.BmkKesselC)
		h.OutdoorC = nullPtr(r.OutdoorC)
		h.BufTopC = nullPtr(r.BufTopC)
		h.BufMidC = nullPtr(r.BufMidC)
		h.BufBottomC = nullPtr(r.BufBottomC)
		h.BmkWarmwasserC = nullPtr(r.BmkWarmwasserC)
	}

	out := make([]types.HourlyAverage, 0, len(byHour))
	for _, h := range byHour {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}

// DailyTotals integrates PV power per calendar day. days <= 0 covers the
// whole table; otherwise rows from the start of the day days ago onward.
func (s *Store) DailyTotals(days int) ([]types.DailyEnergy, error) {
	cutoff := ""
	if days > 0 {
		since := timebase.StartOfDay(s.clock.Now()).AddDate(0, 0, -days)
		cutoff = timebase.Format(since)
	}
	return s.dailySince(cutoff)
}

func (s *Store) dailySince(cutoff string) ([]types.DailyEnergy, error) {
	query := "SELECT timestamp, pv_power_kw FROM pv"
	var args []interface{}
	if cutoff != "" {
		query += " WHERE timestamp >= ?"
		args = append(args, cutoff)
	}
	query += " ORDER BY timestamp"

	var rows []pvPoint
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, s.readErr(err)
	}

	points := make([]energy.PowerPoint, 0, len(rows))
	for _, r := range rows {
		if !r.PVPowerKW.Valid {
			continue
		}
		t, err := timebase.Parse(r.Timestamp)
		if err != nil {
			continue
		}
		points = append(points, energy.PowerPoint{Time: t, KW: r.PVPowerKW.Float64})
	}
	return energy.DailyFromPoints(points), nil
}

// MonthlyTotals buckets the daily totals of roughly the last months
// months by calendar month.
func (s *Store) MonthlyTotals(months int) ([]types.MonthlyEnergy, error) {
	if months <= 0 {
		return []types.MonthlyEnergy{}, nil
	}
	daily, err := s.DailyTotals(months * 31)
	if err != nil {
		return nil, err
	}
	return energy.MonthlyFromDaily(daily, months), nil
}

// CleanupOld deletes rows strictly older than now-retentionDays from both
// tables in one transaction. Rows exactly at the boundary are kept.
func (s *Store) CleanupOld(retentionDays int) (types.CleanupResult, error) {
	var res types.CleanupResult
	if retentionDays <= 0 {
		return res, faults.Errorf(faults.StoreWrite, "retention must be positive, got %d", retentionDays)
	}
	cutoff := timebase.Format(s.clock.Now().AddDate(0, 0, -retentionDays))

	err := s.writeTx(func(tx *sqlx.Tx) error {
		r, err := tx.Exec("DELETE FROM pv WHERE timestamp < ?", cutoff)
		if err != nil {
			return err
		}
		if res.PV, err = r.RowsAffected(); err != nil {
			return err
		}
		r, err = tx.Exec("DELETE FROM heating WHERE timestamp < ?", cutoff)
		if err != nil {
			return err
		}
		res.Heating, err = r.RowsAffected()
		return err
	})
	if err != nil {
		return types.CleanupResult{}, err
	}
	if res.PV > 0 || res.Heating > 0 {
		s.log.Infof("Retention removed %d pv and %d heating rows older than %s", res.PV, res.Heating, cutoff)
	}
	return res, nil
}

// HasPVSignal reports whether any stored PV power is non-zero.
func (s *Store) HasPVSignal() (bool, error) {
	var found bool
	err := s.db.Get(&found,
		"SELECT EXISTS(SELECT 1 FROM pv WHERE ABS(pv_power_kw) > 0.000001)")
	if err != nil {
		return false, s.readErr(err)
	}
	return found, nil
}

func (s *Store) count(table string) (int, error) {
	var n int
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, s.readErr(err)
	}
	return n, nil
}

func (s *Store) YieldHistory() ([]types.YieldRow, error) {
	var rows []types.YieldRow
	err := s.db.Select(&rows, "SELECT date, daily_kwh, total_kwh FROM yield_history ORDER BY date")
	if err != nil {
		return nil, s.readErr(err)
	}
	return rows, nil
}

// ReplaceYieldHistory swaps the whole table for rows in one transaction.
func (s *Store) ReplaceYieldHistory(rows []types.YieldRow) error {
	createdAt := timebase.Format(s.clock.Now())
	return s.writeTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("DELETE FROM yield_history"); err != nil {
			return err
		}
		for _, r := range rows {
			_, err := tx.Exec(
				"INSERT INTO yield_history (date, daily_kwh, total_kwh, created_at) VALUES (?, ?, ?, ?)",
				r.Date, r.DailyKWh, r.TotalKWh, createdAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
