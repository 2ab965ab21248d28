// Sparkline keeps a small, pre-smoothed 48 h view of PV power and outdoor
// temperature on disk so the dashboard can render before the database is
// queried.
package sparkline

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/pathing"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
	"github.com/sirupsen/logrus"
)

const (
	Window          = 48 * time.Hour
	BinSize         = 15 * time.Minute
	SmoothWindow    = 5
	RefreshDebounce = 60 * time.Second
	// WarmupDelay separates the cached render at start from the first
	// database refresh.
	WarmupDelay = 3 * time.Second

	minPVKW     = -0.2
	minOutdoorC = -40.0
	maxOutdoorC = 60.0
)

type Cache struct {
	path  string
	store Reader
	clock timebase.Clock
	log   *logrus.Entry

	mu       sync.Mutex
	series   Series
	lastRead time.Time

	fileMu sync.Mutex
}

func New(path string, store Reader, clock timebase.Clock) *Cache {
	if clock == nil {
		clock = timebase.SystemClock{}
	}
	return &Cache{
		path:  path,
		store: store,
		clock: clock,
		log:   logging.For("sparkline"),
	}
}

// Load reads the cache file into memory. A missing file is not an error.
func (c *Cache) Load() (Series, error) {
	b, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c.Series(), nil
	}
	if err != nil {
		return c.Series(), faults.Wrapf(faults.CacheIO, err, "read sparkline cache")
	}
	var s Series
	if err := json.Unmarshal(b, &s); err != nil {
		return c.Series(), faults.Wrapf(faults.CacheIO, err, "decode sparkline cache")
	}

	c.mu.Lock()
	c.series = s
	c.mu.Unlock()
	return s.clone(), nil
}

// Series returns a copy of the in-memory series.
func (c *Cache) Series() Series {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.series.clone()
}

// Refresh rebuilds both series from the store. Without force the store is
// read at most once per RefreshDebounce. A series that comes back empty
// never replaces a non-empty one.
func (c *Cache) Refresh(force bool) (Series, error) {
	now := c.clock.Now()

	c.mu.Lock()
	if !force && !c.lastRead.IsZero() && now.Sub(c.lastRead) < RefreshDebounce {
		s := c.series.clone()
		c.mu.Unlock()
		return s, nil
	}
	c.lastRead = now
	c.mu.Unlock()

	hours := Window.Hours()
	pvRows, err := c.store.RecentPV(hours, 0)
	if err != nil {
		c.log.WithError(err).Warn("PV read failed, keeping cached series")
		pvRows = nil
	}
	heatRows, err := c.store.RecentHeating(hours, 0)
	if err != nil {
		c.log.WithError(err).Warn("Heating read failed, keeping cached series")
		heatRows = nil
	}

	fresh := Series{
		PV:   Smooth(Bin(pvPoints(pvRows)), SmoothWindow),
		Temp: Smooth(Bin(tempPoints(heatRows)), SmoothWindow),
	}

	c.mu.Lock()
	merged := Merge(c.series, fresh, now.Add(-Window))
	changed := len(fresh.PV) > 0 || len(fresh.Temp) > 0
	c.series = merged
	c.mu.Unlock()

	if !changed {
		return merged.clone(), nil
	}
	if err := c.persist(merged); err != nil {
		return merged.clone(), err
	}
	return merged.clone(), nil
}

// RefreshAfter forces one refresh once delay has passed, unless ctx ends
// first. It blocks; run it in its own goroutine.
func (c *Cache) RefreshAfter(ctx context.Context, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if _, err := c.Refresh(true); err != nil {
		c.log.WithError(err).Warn("Initial sparkline refresh failed")
	}
}

func (c *Cache) persist(s Series) error {
	b, err := json.Marshal(s)
	if err != nil {
		return faults.Wrapf(faults.CacheIO, err, "encode sparkline cache")
	}
	c.fileMu.Lock()
	defer c.fileMu.Unlock()
	if err := pathing.WriteFileAtomic(c.path, b); err != nil {
		return faults.Wrapf(faults.CacheIO, err, "write sparkline cache")
	}
	return nil
}

func pvPoints(rows []types.PVSample) []Point {
	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		if r.PVPowerKW == nil || !units.IsFinite(*r.PVPowerKW) {
			continue
		}
		v := units.AutoScaleKw(*r.PVPowerKW)
		if v < minPVKW {
			continue
		}
		t, err := timebase.Parse(r.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, Point{Time: t, Value: v})
	}
	return out
}

func tempPoints(rows []types.HeatingSample) []Point {
	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		if r.OutdoorC == nil || !units.IsFinite(*r.OutdoorC) {
			continue
		}
		v := *r.OutdoorC
		if v < minOutdoorC || v > maxOutdoorC {
			continue
		}
		t, err := timebase.Parse(r.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, Point{Time: t, Value: v})
	}
	return out
}

// BinKey floors t to its quarter hour.
func BinKey(t time.Time) time.Time {
	return t.Add(-time.Duration(t.Minute()%15)*time.Minute -
		time.Duration(t.Second())*time.Second -
		time.Duration(t.Nanosecond()))
}

// Bin averages points per quarter hour, ascending by bin.
func Bin(points []Point) []Point {
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	keys := make(map[int64]time.Time)
	for _, p := range points {
		k := BinKey(p.Time)
		u := k.Unix()
		sums[u] += p.Value
		counts[u]++
		keys[u] = k
	}
	out := make([]Point, 0, len(keys))
	for u, k := range keys {
		out = append(out, Point{Time: k, Value: sums[u] / float64(counts[u])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Smooth applies a centred moving average; the window shrinks at the ends.
func Smooth(points []Point, window int) []Point {
	if window <= 1 || len(points) == 0 {
		return points
	}
	half := window / 2
	out := make([]Point, len(points))
	for i := range points {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi > len(points)-1 {
			hi = len(points) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += points[j].Value
		}
		out[i] = Point{Time: points[i].Time, Value: sum / float64(hi-lo+1)}
	}
	return out
}

// Merge combines the cached and fresh series. A fresh series overrides
// cached bins at the same time and drops cached bins before since; an
// empty fresh series leaves the cached one untouched.
func Merge(cached, fresh Series, since time.Time) Series {
	return Series{
		PV:   mergePoints(cached.PV, fresh.PV, since),
		Temp: mergePoints(cached.Temp, fresh.Temp, since),
	}
}

func mergePoints(cached, fresh []Point, since time.Time) []Point {
	if len(fresh) == 0 {
		return append([]Point(nil), cached...)
	}
	byTime := make(map[int64]Point, len(cached)+len(fresh))
	for _, p := range cached {
		if !p.Time.Before(since) {
			byTime[p.Time.Unix()] = p
		}
	}
	for _, p := range fresh {
		byTime[p.Time.Unix()] = p
	}
	out := make([]Point, 0, len(byTime))
	for _, p := range byTime {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
