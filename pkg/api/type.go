package api

import (
	"github.com/NotCoffee418/homedash/pkg/health"
	"github.com/NotCoffee418/homedash/pkg/sparkline"
	"github.com/NotCoffee418/homedash/pkg/types"
)

// Reader is the read side of the store the API serves from.
type Reader interface {
	LastPV() (*types.PVSample, error)
	LastHeating() (*types.HeatingSample, error)
	LatestTimestamp() (string, bool, error)
	RecentHeating(hours float64, limit int) ([]types.HeatingSample, error)
	HourlyAverages(hours float64) ([]types.HourlyAverage, error)
	DailyTotals(days int) ([]types.DailyEnergy, error)
	MonthlyTotals(months int) ([]types.MonthlyEnergy, error)
	YieldHistory() ([]types.YieldRow, error)
}

// Feed is the live side: last deliveries, the delivery queue and health.
type Feed interface {
	Latest(source types.Source) (types.Delivery, bool)
	Events() <-chan types.Delivery
	Health() *health.Register
}

// SparklineSource serves the cached 48 h series.
type SparklineSource interface {
	Refresh(force bool) (sparkline.Series, error)
}

type healthResponse struct {
	Status          string                  `json:"status"`
	LatestTimestamp *string                 `json:"latest_timestamp"`
	Sources         map[string]sourceHealth `json:"sources"`
}

type sourceHealth struct {
	health.Record
	Stale bool `json:"stale"`
}

type lastFireResponse struct {
	LastFire *string `json:"last_fire"`
}
