package aggregator

import "github.com/NotCoffee418/homedash/pkg/types"

// YieldStore is what the yield rebuild needs from the database.
type YieldStore interface {
	DailyTotals(days int) ([]types.DailyEnergy, error)
	YieldHistory() ([]types.YieldRow, error)
	ReplaceYieldHistory(rows []types.YieldRow) error
}

// RetentionStore deletes rows older than the retention horizon.
type RetentionStore interface {
	CleanupOld(retentionDays int) (types.CleanupResult, error)
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Report is the run summary written to ertrag_validation.json.
type Report struct {
	RunID       string  `json:"run_id"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  string  `json:"finished_at"`
	OldDays     int     `json:"old_days"`
	Days        int     `json:"days"`
	KeptDays    int     `json:"kept_days"`
	DroppedDays int     `json:"dropped_days"`
	OldTotalKWh float64 `json:"old_total_kwh"`
	NewTotalKWh float64 `json:"new_total_kwh"`
	DeltaPct    float64 `json:"delta_pct"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
}

type backup struct {
	CreatedAt string           `json:"created_at"`
	Rows      []types.YieldRow `json:"rows"`
}
