package dispatcher

import (
	"context"
	"time"

	"github.com/NotCoffee418/homedash/pkg/fetcher"
	"github.com/NotCoffee418/homedash/pkg/health"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
)

const (
	DefaultPeriod = 10 * time.Second
	StopTimeout   = 2 * time.Second
)

// SampleStore is the write side of the database.
type SampleStore interface {
	InsertPV(sample types.PVSample) error
	InsertHeating(sample types.HeatingSample) error
}

// Sink receives every accepted delivery after it is stored.
type Sink interface {
	Publish(d types.Delivery) error
}

// Worker polls one fetcher every Period.
type Worker struct {
	Fetcher fetcher.Fetcher
	Period  time.Duration
}

// Task is an extra long-running job started and stopped with the workers.
type Task func(ctx context.Context) error

type Config struct {
	Store      SampleStore
	Health     *health.Register
	Clock      timebase.Clock
	Workers    []Worker
	Sinks      []Sink
	Background []Task
}
