// Dispatcher runs one polling loop per source, stores what comes back and
// hands every accepted sample to a single consumer queue.
package dispatcher

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/health"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/normalizer"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/chanx"
	"golang.org/x/sync/errgroup"
)

var ErrStopTimeout = faults.New(faults.Unknown, "workers did not stop in time")

type Dispatcher struct {
	cfg     Config
	log     *logrus.Entry
	limiter *logging.RateLimiter
	queue   *chanx.UnboundedChan[types.Delivery]

	mu     sync.RWMutex
	latest map[types.Source]types.Delivery

	runMu       sync.Mutex
	cancel      context.CancelFunc
	done        chan error
	stopped     bool
	stopTimeout time.Duration
}

func New(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = timebase.SystemClock{}
	}
	if cfg.Health == nil {
		cfg.Health = health.NewRegister(cfg.Clock)
	}
	return &Dispatcher{
		cfg:     cfg,
		log:     logging.For("dispatcher"),
		limiter: logging.NewRateLimiter(time.Minute),
		queue:   chanx.NewUnboundedChan[types.Delivery](context.Background(), 16),
		latest:  make(map[types.Source]types.Delivery),

		stopTimeout: StopTimeout,
	}
}

// Health is the register the workers report into.
func (d *Dispatcher) Health() *health.Register {
	return d.cfg.Health
}

// Events is the delivery queue. It has exactly one consumer and is closed
// after Stop.
func (d *Dispatcher) Events() <-chan types.Delivery {
	return d.queue.Out
}

// Latest returns the last accepted delivery for source.
func (d *Dispatcher) Latest(source types.Source) (types.Delivery, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	del, ok := d.latest[source]
	return del, ok
}

// Start launches every worker and background task. It returns at once.
func (d *Dispatcher) Start(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel != nil || d.stopped {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.cfg.Workers {
		w := w
		g.Go(func() error { return d.run(gctx, w) })
	}
	for _, task := range d.cfg.Background {
		task := task
		g.Go(func() error { return task(gctx) })
	}

	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		d.done <- g.Wait()
	}()
	d.log.Infof("Started %d workers and %d background tasks", len(d.cfg.Workers), len(d.cfg.Background))
}

// Stop signals shutdown and waits up to StopTimeout for the workers. The
// event queue is closed once they have exited, even when that happens after
// Stop has given up waiting.
func (d *Dispatcher) Stop() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true
	if d.cancel == nil {
		close(d.queue.In)
		return nil
	}
	d.cancel()

	select {
	case err := <-d.done:
		close(d.queue.In)
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	case <-time.After(d.stopTimeout):
		d.log.Warn("Workers still busy after shutdown deadline")
		// the queue closes once the stragglers have exited
		go func() {
			<-d.done
			close(d.queue.In)
		}()
		return ErrStopTimeout
	}
}

func (d *Dispatcher) run(ctx context.Context, w Worker) error {
	period := w.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	source := w.Fetcher.Source()
	d.log.Debugf("Polling %s every %s", source, period)

	for {
		start := time.Now()
		d.poll(ctx, w)

		// A slow fetch starts the next iteration right away.
		wait := period - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// poll is one loop iteration. Nothing escapes it: failures go to the
// health register, panics are logged at most once a minute per source.
func (d *Dispatcher) poll(ctx context.Context, w Worker) {
	source := w.Fetcher.Source()
	defer func() {
		if r := recover(); r != nil {
			d.cfg.Health.RecordError(source, faults.Errorf(faults.Unknown, "panic: %v", r), 0)
			d.limiter.Error(d.log, "panic:"+source.String(),
				"Recovered from panic polling %s: %v\n%s", source, r, debug.Stack())
		}
	}()

	res, err := w.Fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.cfg.Health.RecordError(source, err, res.Latency)
		return
	}

	del, ok := d.normalize(source, res.Raw)
	if !ok {
		d.cfg.Health.RecordError(source, faults.New(faults.Schema, "no canonical values in response"), res.Latency)
		return
	}
	d.cfg.Health.RecordOK(source, res.Latency)

	if ts, err := timebase.Parse(del.Timestamp()); err == nil && timebase.IsFuture(ts, d.cfg.Clock.Now()) {
		d.cfg.Health.RecordFuture(source)
		d.limiter.Warn(d.log, "future:"+source.String(),
			"%s sample at %s is ahead of the local clock", source, del.Timestamp())
	}

	if err := d.store(del); err != nil {
		d.cfg.Health.RecordError(source, faults.Wrap(faults.StoreWrite, err), 0)
		d.limiter.Error(d.log, "store:"+source.String(), "Storing %s sample failed: %v", source, err)
	} else {
		d.cfg.Health.RecordStored(source)
	}

	d.mu.Lock()
	d.latest[source] = del
	d.mu.Unlock()

	d.queue.In <- del

	for _, sink := range d.cfg.Sinks {
		if err := sink.Publish(del); err != nil {
			d.limiter.Warn(d.log, "sink:"+source.String(), "Publishing %s sample failed: %v", source, err)
		}
	}
}

func (d *Dispatcher) normalize(source types.Source, raw types.Raw) (types.Delivery, bool) {
	now := timebase.Format(d.cfg.Clock.Now())
	switch source {
	case types.SourcePV:
		s := normalizer.NormalizePV(raw)
		if s.IsEmpty() {
			return types.Delivery{}, false
		}
		if s.Timestamp == "" {
			s.Timestamp = now
		}
		return types.Delivery{Source: source, PV: &s}, true
	case types.SourceHeating:
		s := normalizer.NormalizeHeating(raw)
		if s.IsEmpty() {
			return types.Delivery{}, false
		}
		if s.Timestamp == "" {
			s.Timestamp = now
		}
		return types.Delivery{Source: source, Heating: &s}, true
	}
	return types.Delivery{}, false
}

func (d *Dispatcher) store(del types.Delivery) error {
	if d.cfg.Store == nil {
		return nil
	}
	switch {
	case del.PV != nil:
		return d.cfg.Store.InsertPV(*del.PV)
	case del.Heating != nil:
		return d.cfg.Store.InsertHeating(*del.Heating)
	}
	return nil
}
