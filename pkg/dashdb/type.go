package dashdb

import (
	"database/sql"

	"github.com/NotCoffee418/homedash/pkg/types"
)

// heatingRow is the stored form of a heating sample; raw_json holds the
// auxiliary positional fields.
type heatingRow struct {
	types.HeatingSample
	RawJSON sql.NullString `db:"raw_json"`
}

type pvPoint struct {
	Timestamp string          `db:"timestamp"`
	PVPowerKW sql.NullFloat64 `db:"pv_power_kw"`
}

type pvHourRow struct {
	Hour           sql.NullString  `db:"hour"`
	PVPowerKW      sql.NullFloat64 `db:"pv_power_kw"`
	GridPowerKW    sql.NullFloat64 `db:"grid_power_kw"`
	BatteryPowerKW sql.NullFloat64 `db:"battery_power_kw"`
	BatterySocPct  sql.NullFloat64 `db:"battery_soc_pct"`
	LoadPowerKW    sql.NullFloat64 `db:"load_power_kw"`
}

type heatingHourRow struct {
	Hour           sql.NullString  `db:"hour"`
	BmkKesselC     sql.NullFloat64 `db:"bmk_kessel_c"`
	OutdoorC       sql.NullFloat64 `db:"outdoor_c"`
	BufTopC        sql.NullFloat64 `db:"buf_top_c"`
	BufMidC        sql.NullFloat64 `db:"buf_mid_c"`
	BufBottomC     sql.NullFloat64 `db:"buf_bottom_c"`
	BmkWarmwasserC sql.NullFloat64 `db:"bmk_warmwasser_c"`
}

// SeedResult counts rows imported per table by SeedFromCSV.
type SeedResult struct {
	PV      int `json:"pv"`
	Heating int `json:"heating"`
}

func nullPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pv (
		timestamp TEXT PRIMARY KEY,
		pv_power_kw REAL,
		grid_power_kw REAL,
		battery_power_kw REAL,
		battery_soc_pct REAL,
		created_at TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS heating (
		timestamp TEXT PRIMARY KEY,
		bmk_kessel_c REAL,
		outdoor_c REAL,
		buf_top_c REAL,
		buf_mid_c REAL,
		buf_bottom_c REAL,
		bmk_warmwasser_c REAL,
		created_at TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS yield_history (
		date TEXT PRIMARY KEY,
		daily_kwh REAL NOT NULL,
		total_kwh REAL NOT NULL,
		created_at TEXT
	);`,
}

// additiveColumns are added to existing tables when missing.
var additiveColumns = []struct {
	table, column, decl string
}{
	{"pv", "load_power_kw", "REAL"},
	{"heating", "raw_json", "TEXT"},
	{"yield_history", "created_at", "TEXT"},
}
