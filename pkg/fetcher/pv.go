package fetcher

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
	"github.com/sirupsen/logrus"
)

// PVFetcher polls the inverter's power-flow endpoint.
type PVFetcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
	clock   timebase.Clock
	log     *logrus.Entry
	limiter *logging.RateLimiter
}

func NewPVFetcher(url string, timeout time.Duration, clock timebase.Clock) *PVFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clock == nil {
		clock = timebase.SystemClock{}
	}
	return &PVFetcher{
		url:     url,
		timeout: timeout,
		client:  newHTTPClient(timeout),
		clock:   clock,
		log:     logging.For("pv-fetcher"),
		limiter: logging.NewRateLimiter(time.Minute),
	}
}

func (f *PVFetcher) Source() types.Source {
	return types.SourcePV
}

// Fetch performs one GET and returns a raw record with canonical keys in kW.
func (f *PVFetcher) Fetch(ctx context.Context) (Result, error) {
	start := time.Now()
	body, err := get(ctx, f.client, f.url, f.timeout)
	latency := time.Since(start)
	if err != nil {
		f.logFailure(err)
		return Result{Latency: latency}, err
	}

	raw, err := ParsePowerFlow(body, f.clock.Now())
	if err != nil {
		f.log.Debugf("Unusable power flow document: %v", err)
		return Result{Latency: latency}, err
	}
	return Result{Raw: raw, Latency: latency}, nil
}

// At most one timeout and one generic request line per minute.
func (f *PVFetcher) logFailure(err error) {
	switch faults.KindOf(err) {
	case faults.Timeout:
		f.limiter.Warn(f.log, "timeout", "Inverter request timed out after %s", f.timeout)
	default:
		f.limiter.Warn(f.log, "request", "Inverter request failed: %v", err)
	}
}

// ParsePowerFlow decodes a GetPowerFlowRealtimeData body. Powers arrive in
// watts and leave in kW. Without P_Load, load is derived as
// pv + battery - grid.
func ParsePowerFlow(body []byte, now time.Time) (types.Raw, error) {
	var doc powerFlowDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, faults.Wrapf(faults.Parse, err, "decode power flow")
	}
	site := doc.Body.Data.Site
	if site.PPV == nil && site.PGrid == nil {
		return nil, faults.New(faults.Schema, "power flow document lacks Body.Data.Site.P_PV")
	}

	ts := timebase.Format(now)
	if doc.Head.Timestamp != "" {
		if parsed, ok := timebase.Normalize(doc.Head.Timestamp); ok {
			ts = parsed
		}
	}

	raw := types.Raw{types.KeyTimestamp: ts}
	// Fronius reports P_PV as null at night.
	pv := 0.0
	if site.PPV != nil {
		pv = units.WToKw(*site.PPV)
	}
	raw[types.KeyPVPower] = pv

	var grid, battery *float64
	if site.PGrid != nil {
		grid = types.Float(units.WToKw(*site.PGrid))
		raw[types.KeyGridPower] = *grid
	}
	if site.PAkku != nil {
		battery = types.Float(units.WToKw(*site.PAkku))
		raw[types.KeyBatteryPower] = *battery
	}

	switch {
	case site.PLoad != nil:
		// Fronius reports consumption as a negative number.
		raw[types.KeyLoadPower] = math.Abs(units.WToKw(*site.PLoad))
	case grid != nil:
		b := 0.0
		if battery != nil {
			b = *battery
		}
		raw[types.KeyLoadPower] = pv + b - *grid
	}

	if inv, ok := doc.Body.Data.Inverters["1"]; ok && inv.SOC != nil {
		raw[types.KeyBatterySoc] = *inv.SOC
	}
	return raw, nil
}
