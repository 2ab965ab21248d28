// Heatevent finds the last time the wood boiler was fired, from the boiler
// and buffer-top temperature series.
package heatevent

import (
	"math"
	"sort"
	"time"

	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
)

const (
	window        = 2 * time.Hour
	spikeDeltaC   = 4.0
	spikeWithin   = 20 * time.Minute
	confirmWithin = 15 * time.Minute
	confirmRiseC  = 0.3
	riseWithin    = 60 * time.Minute
	strongRiseC   = 10.0
	weakRiseC     = 8.0
	bufferWithin  = 120 * time.Minute
	bufferRiseC   = 2.5
	minRawPoints  = 8
	minWindowed   = 6
)

// Point is one boiler reading. BufTop is NaN when the buffer sensor had no
// value.
type Point struct {
	Time   time.Time
	Kessel float64
	BufTop float64
}

// PointsFromSamples keeps the rows with a parseable timestamp and a boiler
// temperature, sorted ascending.
func PointsFromSamples(rows []types.HeatingSample) []Point {
	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		if r.BmkKesselC == nil {
			continue
		}
		t, err := timebase.Parse(r.Timestamp)
		if err != nil {
			continue
		}
		buf := math.NaN()
		if r.BufTopC != nil {
			buf = *r.BufTopC
		}
		out = append(out, Point{Time: t, Kessel: *r.BmkKesselC, BufTop: buf})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// LastFireStart returns the start of the most recent boiler firing within
// the last two hours of points, or false when there is none or too little
// data.
func LastFireStart(points []Point) (time.Time, bool) {
	if len(points) < minRawPoints {
		return time.Time{}, false
	}
	pts := windowed(points)
	if len(pts) < minWindowed {
		return time.Time{}, false
	}

	spike := make([]bool, len(pts))
	for i := 1; i < len(pts); i++ {
		dt := pts[i].Time.Sub(pts[i-1].Time)
		spike[i] = dt < spikeWithin && math.Abs(pts[i].Kessel-pts[i-1].Kessel) > spikeDeltaC
	}

	// Consecutive qualifying indices belong to one firing; keep the start
	// of the last run.
	start := -1
	prev := false
	for i := range pts {
		ok := !spike[i] && qualifies(pts, spike, i)
		if ok && !prev {
			start = i
		}
		prev = ok
	}
	if start < 0 {
		return time.Time{}, false
	}

	// Move to the last flat reading before the temperature starts climbing.
	for start+1 < len(pts) && !spike[start+1] &&
		pts[start+1].Kessel <= pts[start].Kessel &&
		pts[start+1].Time.Sub(pts[start].Time) < confirmWithin {
		start++
	}
	return pts[start].Time, true
}

func windowed(points []Point) []Point {
	newest := points[len(points)-1].Time
	from := newest.Add(-window)
	first := sort.Search(len(points), func(i int) bool { return !points[i].Time.Before(from) })
	if first > 0 {
		first--
	}
	return points[first:]
}

func qualifies(pts []Point, spike []bool, i int) bool {
	base := pts[i]
	if maxAhead(pts, spike, i, confirmWithin, kessel)-base.Kessel < confirmRiseC {
		return false
	}
	rise := maxAhead(pts, spike, i, riseWithin, kessel) - base.Kessel
	if rise >= strongRiseC {
		return true
	}
	if rise < weakRiseC || math.IsNaN(base.BufTop) {
		return false
	}
	bufRise := maxAhead(pts, spike, i, bufferWithin, bufTop) - base.BufTop
	return bufRise >= bufferRiseC
}

func kessel(p Point) float64 { return p.Kessel }
func bufTop(p Point) float64 { return p.BufTop }

// maxAhead is the largest value strictly after i and strictly within d,
// ignoring spikes and NaN. It is -Inf when nothing qualifies.
func maxAhead(pts []Point, spike []bool, i int, d time.Duration, val func(Point) float64) float64 {
	best := math.Inf(-1)
	limit := pts[i].Time.Add(d)
	for j := i + 1; j < len(pts) && pts[j].Time.Before(limit); j++ {
		if spike[j] {
			continue
		}
		if v := val(pts[j]); !math.IsNaN(v) && v > best {
			best = v
		}
	}
	return best
}
