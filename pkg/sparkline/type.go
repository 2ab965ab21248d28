package sparkline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
)

// Reader is the slice of the store the cache reads from.
type Reader interface {
	RecentPV(hours float64, limit int) ([]types.PVSample, error)
	RecentHeating(hours float64, limit int) ([]types.HeatingSample, error)
}

const isoLayout = "2006-01-02T15:04:05"

// Point is one binned value. On disk it is the pair [iso_ts, value].
type Point struct {
	Time  time.Time
	Value float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Time.In(timebase.Zone()).Format(isoLayout), p.Value})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var pair []interface{}
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("sparkline point needs 2 elements, got %d", len(pair))
	}
	ts, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("sparkline point timestamp is %T", pair[0])
	}
	t, err := timebase.Parse(ts)
	if err != nil {
		return err
	}
	v, ok := pair[1].(float64)
	if !ok {
		return fmt.Errorf("sparkline point value is %T", pair[1])
	}
	p.Time, p.Value = t, v
	return nil
}

// Series is the cached payload: PV power in kW and outdoor temperature.
type Series struct {
	PV   []Point `json:"pv"`
	Temp []Point `json:"temp"`
}

func (s Series) clone() Series {
	return Series{
		PV:   append([]Point(nil), s.PV...),
		Temp: append([]Point(nil), s.Temp...),
	}
}
