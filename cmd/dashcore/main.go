// Dashcore polls the PV inverter and the heating controller, stores every
// sample and serves the derived series and a live feed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/NotCoffee418/homedash/pkg/aggregator"
	"github.com/NotCoffee418/homedash/pkg/api"
	"github.com/NotCoffee418/homedash/pkg/config"
	"github.com/NotCoffee418/homedash/pkg/dashdb"
	"github.com/NotCoffee418/homedash/pkg/dispatcher"
	"github.com/NotCoffee418/homedash/pkg/fetcher"
	"github.com/NotCoffee418/homedash/pkg/health"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/mqttsink"
	"github.com/NotCoffee418/homedash/pkg/pathing"
	"github.com/NotCoffee418/homedash/pkg/solarinverter"
	"github.com/NotCoffee418/homedash/pkg/sparkline"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/sirupsen/logrus"
)

var log = logging.For("dashcore")

func main() {
	seed := flag.Bool("seed", false, "import CSV history into empty tables and exit")
	cleanup := flag.Bool("cleanup", false, "apply the retention horizon once and exit")
	rebuildYield := flag.Bool("rebuild-yield", false, "rebuild yield history once and exit")
	flag.Parse()

	logging.Setup()

	// Load config
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	if err := config.LoadDashcoreConfig(); err != nil {
		log.Fatalf("Failed to load dashcore config: %v", err)
	}
	cfg := config.ActiveDashcoreConfig
	timebase.SetLocal(cfg.LocalTimestamps)
	if cfg.DataDir != "" {
		os.Setenv("DASH_DATA_DIR", cfg.DataDir)
	}
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	clock := timebase.SystemClock{}
	store, err := dashdb.Open(cfg.ResolvedDbPath(), clock)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	dashdb.SetShared(store)
	defer dashdb.CloseShared()

	if *seed || *cleanup || *rebuildYield {
		code := 0
		switch {
		case *seed:
			code = runSeed(store, cfg)
		case *cleanup:
			code = runCleanup(store, cfg)
		case *rebuildYield:
			code = runRebuildYield(store, clock)
		}
		dashdb.CloseShared()
		os.Exit(code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := health.NewRegister(clock)
	dataDir := pathing.GetDataDir()

	var sinks []dispatcher.Sink
	if cfg.MqttBroker != "" {
		sink, err := mqttsink.Connect(cfg.MqttBroker, cfg.MqttTopic)
		if err != nil {
			log.Warnf("MQTT sink disabled: %v", err)
		} else {
			defer sink.Close()
			sinks = append(sinks, sink)
		}
	}

	validator := &aggregator.Validator{
		Store:    store,
		Dir:      dataDir,
		Interval: cfg.YieldValidateInterval.Duration,
		Clock:    clock,
	}
	retention := &aggregator.Retention{Store: store, RetentionDays: cfg.RetentionDays}

	disp := dispatcher.New(dispatcher.Config{
		Store:  store,
		Health: reg,
		Clock:  clock,
		Workers: []dispatcher.Worker{
			{Fetcher: pvFetcher(cfg, clock), Period: cfg.PVInterval.Duration},
			{Fetcher: fetcher.NewHeatingFetcher(cfg.HeatingURL, cfg.RequestTimeout.Duration, clock), Period: cfg.HeatingInterval.Duration},
		},
		Sinks:      sinks,
		Background: []dispatcher.Task{validator.Run, retention.Run},
	})

	spark := sparkline.New(pathing.GetSparklineCachePath(), store, clock)
	if _, err := spark.Load(); err != nil {
		log.Warnf("Sparkline cache unreadable, starting empty: %v", err)
	}

	disp.Start(ctx)
	go spark.RefreshAfter(ctx, sparkline.WarmupDelay)

	server := api.NewServer(store, disp, spark)
	if err := server.Run(ctx, cfg.ListenAddr()); err != nil {
		log.Errorf("API server stopped: %v", err)
		stop()
	}

	if err := disp.Stop(); err != nil {
		log.Warnf("Dispatcher shutdown: %v", err)
	}
	writeHeapSnapshot(dataDir)
	log.Info("Shutdown complete")
}

func pvFetcher(cfg *config.DashcoreConfig, clock timebase.Clock) fetcher.Fetcher {
	if cfg.PVSource == "modbus" {
		return solarinverter.NewReader(solarinverter.Config{
			Host:             cfg.SolarInverterIp,
			Port:             cfg.SolarInverterModbusPort,
			SlaveId:          byte(cfg.SolarInverterSlaveId),
			Timeout:          cfg.RequestTimeout.Duration,
			WlanConnectionId: cfg.WlanConnectionId,
		}, clock)
	}
	return fetcher.NewPVFetcher(cfg.PVURL, cfg.RequestTimeout.Duration, clock)
}

func runSeed(store *dashdb.Store, cfg *config.DashcoreConfig) int {
	dir := cfg.ResolvedSeedDir()
	res, err := store.SeedFromCSV(dir)
	if err != nil {
		log.Errorf("Seeding from %s failed: %v", dir, err)
		return 1
	}
	log.WithFields(logrus.Fields{"pv": res.PV, "heating": res.Heating}).Info("Seeding finished")
	return 0
}

func runCleanup(store *dashdb.Store, cfg *config.DashcoreConfig) int {
	res, err := aggregator.AggregateAndCleanup(store, cfg.RetentionDays)
	if err != nil {
		log.Errorf("Cleanup failed: %v", err)
		return 1
	}
	log.WithFields(logrus.Fields{"pv": res.PV, "heating": res.Heating}).Info("Cleanup finished")
	return 0
}

func runRebuildYield(store *dashdb.Store, clock timebase.Clock) int {
	report, err := aggregator.RebuildYieldHistory(store, pathing.GetDataDir(), clock)
	if err != nil {
		log.Errorf("Yield rebuild failed: %v", err)
		return 1
	}
	log.WithFields(logrus.Fields{
		"days":      report.Days,
		"total_kwh": report.NewTotalKWh,
		"delta_pct": report.DeltaPct,
	}).Info("Yield history rebuilt")
	return 0
}

// writeHeapSnapshot dumps a heap profile when TRACEMALLOC_SNAPSHOT is set.
func writeHeapSnapshot(dir string) {
	if os.Getenv("TRACEMALLOC_SNAPSHOT") != "1" {
		return
	}
	if depth := os.Getenv("TRACEMALLOC_DEPTH"); depth != "" {
		log.Debugf("TRACEMALLOC_DEPTH=%s ignored, Go profiles record full stacks", depth)
	}
	path := filepath.Join(dir, "heap.pprof")
	f, err := os.Create(path)
	if err != nil {
		log.Warnf("Heap snapshot failed: %v", err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Warnf("Heap snapshot failed: %v", err)
		return
	}
	log.Infof("Heap snapshot written to %s", path)
}
