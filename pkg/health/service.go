// Health keeps one record per source, guarded by its own mutex, and
// mirrors it into Prometheus collectors.
package health

import (
	"sync"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

type Register struct {
	mu      sync.Mutex
	records map[types.Source]*Record
	clock   timebase.Clock

	registry *prometheus.Registry
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	lastOK   *prometheus.GaugeVec
	samples  *prometheus.CounterVec
}

func NewRegister(clock timebase.Clock) *Register {
	if clock == nil {
		clock = timebase.SystemClock{}
	}
	r := &Register{
		records:  make(map[types.Source]*Record),
		clock:    clock,
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homedash",
			Name:      "fetch_latency_seconds",
			Help:      "Latency of source fetches.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"source"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homedash",
			Name:      "fetch_errors_total",
			Help:      "Failures per source and error kind.",
		}, []string{"source", "kind"}),
		lastOK: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "homedash",
			Name:      "last_ok_timestamp_seconds",
			Help:      "Unix time of the last successful fetch.",
		}, []string{"source"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homedash",
			Name:      "samples_stored_total",
			Help:      "Samples accepted into the store.",
		}, []string{"source"}),
	}
	r.registry.MustRegister(r.latency, r.errors, r.lastOK, r.samples)
	return r
}

// Registry exposes the collectors for a /metrics handler.
func (r *Register) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Register) RecordOK(source types.Source, latency time.Duration) {
	now := r.clock.Now()
	r.mu.Lock()
	rec := r.record(source)
	rec.LastOK = &now
	rec.LastLatencyMs = latency.Milliseconds()
	r.mu.Unlock()

	r.latency.WithLabelValues(source.String()).Observe(latency.Seconds())
	r.lastOK.WithLabelValues(source.String()).Set(float64(now.Unix()))
}

// RecordError stores a failure. The kind is taken from err.
func (r *Register) RecordError(source types.Source, err error, latency time.Duration) {
	if err == nil {
		return
	}
	kind := faults.KindOf(err)
	now := r.clock.Now()
	r.mu.Lock()
	rec := r.record(source)
	rec.LastError = &now
	rec.ErrorCount++
	rec.LastLatencyMs = latency.Milliseconds()
	rec.LastErrorMsg = faults.Message(err)
	rec.LastErrorKind = kind.String()
	r.mu.Unlock()

	r.errors.WithLabelValues(source.String(), kind.String()).Inc()
	if latency > 0 {
		r.latency.WithLabelValues(source.String()).Observe(latency.Seconds())
	}
}

// RecordFuture tags a sample whose timestamp lies ahead of the local clock.
func (r *Register) RecordFuture(source types.Source) {
	r.mu.Lock()
	r.record(source).FutureCount++
	r.mu.Unlock()
}

func (r *Register) RecordStored(source types.Source) {
	r.samples.WithLabelValues(source.String()).Inc()
}

// Get returns a copy of the record for source.
func (r *Register) Get(source types.Source) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[source]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot copies every record.
func (r *Register) Snapshot() map[types.Source]Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[types.Source]Record, len(r.records))
	for src, rec := range r.records {
		out[src] = *rec
	}
	return out
}

// Stale reports whether source has not succeeded within maxAge.
func (r *Register) Stale(source types.Source, maxAge time.Duration) bool {
	rec, ok := r.Get(source)
	if !ok || rec.LastOK == nil {
		return true
	}
	return r.clock.Now().Sub(*rec.LastOK) > maxAge
}

func (r *Register) record(source types.Source) *Record {
	rec, ok := r.records[source]
	if !ok {
		rec = &Record{}
		r.records[source] = rec
	}
	return rec
}
