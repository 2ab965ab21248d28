package types

// DailyEnergy is one calendar day of integrated PV production.
type DailyEnergy struct {
	Date    string  `db:"date" json:"date"`
	PVKWh   float64 `db:"pv_kwh" json:"pv_kwh"`
	Samples int     `db:"samples" json:"samples"`
}

// MonthlyEnergy buckets daily energy by the first of the month (YYYY-MM-01).
type MonthlyEnergy struct {
	Month string  `json:"month"`
	PVKWh float64 `json:"pv_kwh"`
	Days  int     `json:"days"`
}

type YieldRow struct {
	Date     string  `db:"date" json:"date"`
	DailyKWh float64 `db:"daily_kwh" json:"daily_kwh"`
	TotalKWh float64 `db:"total_kwh" json:"total_kwh"`
}

// HourlyAverage holds per-hour means of every numeric column of both tables.
type HourlyAverage struct {
	Hour           string   `db:"hour" json:"hour"`
	PVPowerKW      *float64 `db:"pv_power_kw" json:"pv_power_kw,omitempty"`
	GridPowerKW    *float64 `db:"grid_power_kw" json:"grid_power_kw,omitempty"`
	BatteryPowerKW *float64 `db:"battery_power_kw" json:"battery_power_kw,omitempty"`
	BatterySocPct  *float64 `db:"battery_soc_pct" json:"battery_soc_pct,omitempty"`
	LoadPowerKW    *float64 `db:"load_power_kw" json:"load_power_kw,omitempty"`
	BmkKesselC     *float64 `db:"bmk_kessel_c" json:"bmk_kessel_c,omitempty"`
	OutdoorC       *float64 `db:"outdoor_c" json:"outdoor_c,omitempty"`
	BufTopC        *float64 `db:"buf_top_c" json:"buf_top_c,omitempty"`
	BufMidC        *float64 `db:"buf_mid_c" json:"buf_mid_c,omitempty"`
	BufBottomC     *float64 `db:"buf_bottom_c" json:"buf_bottom_c,omitempty"`
	BmkWarmwasserC *float64 `db:"bmk_warmwasser_c" json:"bmk_warmwasser_c,omitempty"`
}

// CleanupResult reports deleted rows per table.
type CleanupResult struct {
	PV      int64 `json:"pv"`
	Heating int64 `json:"heating"`
}
