// Api is the consumer surface of the core: JSON endpoints for the
// dashboard, a websocket stream of live deliveries and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/NotCoffee418/homedash/pkg/heatevent"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	defaultDays   = 30
	defaultMonths = 12
	defaultHours  = 24
	fireLookback  = 3 * time.Hour
	staleAfter    = 2 * time.Minute
)

type Server struct {
	reader    Reader
	feed      Feed
	sparkline SparklineSource
	hub       *Hub
	log       *logrus.Entry
	router    *mux.Router
}

func NewServer(reader Reader, feed Feed, spark SparklineSource) *Server {
	s := &Server{
		reader:    reader,
		feed:      feed,
		sparkline: spark,
		hub:       NewHub(),
		log:       logging.For("api"),
	}
	s.router = s.routes()
	return s
}

// Hub is the websocket fan-out used by Run.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/latest/{source}", s.handleLatest).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/daily", s.handleDaily).Methods("GET")
	r.HandleFunc("/monthly", s.handleMonthly).Methods("GET")
	r.HandleFunc("/hourly", s.handleHourly).Methods("GET")
	r.HandleFunc("/yield", s.handleYield).Methods("GET")
	r.HandleFunc("/sparkline", s.handleSparkline).Methods("GET")
	r.HandleFunc("/heating/last-fire", s.handleLastFire).Methods("GET")
	r.HandleFunc("/ws", s.handleWS)
	if s.feed != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.feed.Health().Registry(), promhttp.HandlerOpts{}))
	}

	if os.Getenv("TRACEMALLOC_ENABLE") == "1" {
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}
	return r
}

// Handler is the router wrapped with access logging.
func (s *Server) Handler() http.Handler {
	return handlers.LoggingHandler(s.log.WriterLevel(logrus.DebugLevel), s.router)
}

// Run serves on addr and forwards deliveries to websocket clients until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.feed != nil {
		go s.forward(ctx)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// forward is the single consumer of the delivery queue.
func (s *Server) forward(ctx context.Context) {
	events := s.feed.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(d)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Home dashboard core",
		"status":  "running",
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	source := types.Source(mux.Vars(r)["source"])
	if source != types.SourcePV && source != types.SourceHeating {
		writeError(w, http.StatusBadRequest, "unknown source")
		return
	}

	if s.feed != nil {
		if d, ok := s.feed.Latest(source); ok {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}

	// Nothing polled yet, fall back to the newest stored row.
	d := types.Delivery{Source: source}
	switch source {
	case types.SourcePV:
		row, err := s.reader.LastPV()
		s.logRead(err, "last pv")
		d.PV = row
	case types.SourceHeating:
		row, err := s.reader.LastHeating()
		s.logRead(err, "last heating")
		d.Heating = row
	}
	if d.PV == nil && d.Heating == nil {
		writeError(w, http.StatusNotFound, "No readings available yet")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Sources: make(map[string]sourceHealth),
	}
	if ts, ok, err := s.reader.LatestTimestamp(); err == nil && ok {
		resp.LatestTimestamp = &ts
	} else {
		s.logRead(err, "latest timestamp")
	}
	if s.feed != nil {
		reg := s.feed.Health()
		snap := reg.Snapshot()
		for _, src := range types.Sources {
			sh := sourceHealth{Record: snap[src], Stale: reg.Stale(src, staleAfter)}
			if sh.Stale {
				resp.Status = "degraded"
			}
			resp.Sources[src.String()] = sh
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", defaultDays)
	if !ok {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return
	}
	rows, err := s.reader.DailyTotals(days)
	s.logRead(err, "daily totals")
	if rows == nil {
		rows = []types.DailyEnergy{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	months, ok := intParam(r, "months", defaultMonths)
	if !ok {
		writeError(w, http.StatusBadRequest, "months must be a non-negative integer")
		return
	}
	rows, err := s.reader.MonthlyTotals(months)
	s.logRead(err, "monthly totals")
	if rows == nil {
		rows = []types.MonthlyEnergy{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(r, "hours", defaultHours)
	if !ok {
		writeError(w, http.StatusBadRequest, "hours must be a non-negative integer")
		return
	}
	rows, err := s.reader.HourlyAverages(float64(hours))
	s.logRead(err, "hourly averages")
	if rows == nil {
		rows = []types.HourlyAverage{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleYield(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reader.YieldHistory()
	s.logRead(err, "yield history")
	if rows == nil {
		rows = []types.YieldRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSparkline(w http.ResponseWriter, r *http.Request) {
	if s.sparkline == nil {
		writeError(w, http.StatusServiceUnavailable, "sparkline cache disabled")
		return
	}
	series, err := s.sparkline.Refresh(r.URL.Query().Get("force") == "1")
	if err != nil {
		s.log.WithError(err).Warn("Sparkline refresh failed")
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleLastFire(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reader.RecentHeating(fireLookback.Hours(), 0)
	s.logRead(err, "recent heating")

	var resp lastFireResponse
	if t, ok := heatevent.LastFireStart(heatevent.PointsFromSamples(rows)); ok {
		ts := timebase.Format(t)
		resp.LastFire = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var initial []types.Delivery
	if s.feed != nil {
		for _, src := range types.Sources {
			if d, ok := s.feed.Latest(src); ok {
				initial = append(initial, d)
			}
		}
	}
	if err := s.hub.Serve(w, r, initial); err != nil {
		s.log.Debugf("WebSocket upgrade error: %v", err)
	}
}

// Store reads never fail a request; the caller renders an empty result.
func (s *Server) logRead(err error, what string) {
	if err != nil {
		s.log.WithError(err).Warnf("Reading %s failed", what)
	}
}
