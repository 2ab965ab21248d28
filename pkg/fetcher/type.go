package fetcher

import (
	"context"
	"time"

	"github.com/NotCoffee418/homedash/pkg/types"
)

const DefaultTimeout = 5 * time.Second

// Fetcher performs one poll of a source. Latency is reported on failure too.
type Fetcher interface {
	Source() types.Source
	Fetch(ctx context.Context) (Result, error)
}

type Result struct {
	Raw     types.Raw
	Latency time.Duration
}

// Fronius GetPowerFlowRealtimeData document, only the fields we read.
type powerFlowDocument struct {
	Head struct {
		Timestamp string `json:"Timestamp"`
	} `json:"Head"`
	Body struct {
		Data struct {
			Site struct {
				PPV   *float64 `json:"P_PV"`
				PGrid *float64 `json:"P_Grid"`
				PAkku *float64 `json:"P_Akku"`
				PLoad *float64 `json:"P_Load"`
			} `json:"Site"`
			Inverters map[string]struct {
				SOC *float64 `json:"SOC"`
			} `json:"Inverters"`
		} `json:"Data"`
	} `json:"Body"`
}
