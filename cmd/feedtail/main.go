// Feedtail prints every live sample from a running dashcore as one JSON
// line. Depends on dashcore being online.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/homedash/pkg/config"
	"github.com/NotCoffee418/homedash/pkg/livefeed"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/types"
)

func main() {
	logging.Setup()
	log := logging.For("feedtail")

	if err := config.LoadFeedtailConfig(); err != nil {
		log.Fatalf("Failed to load feedtail config: %v", err)
	}
	cfg := config.ActiveFeedtailConfig

	// DASHCORE_HOST overrides the config file
	host := os.Getenv("DASHCORE_HOST")
	if host == "" {
		host = cfg.DashcoreHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe to websocket with revive
	listener := livefeed.NewListener(host, cfg.TLSEnabled)
	if err := listener.Run(ctx, handleDelivery); err != nil {
		log.Fatalf("Live feed ended: %v", err)
	}
}

func handleDelivery(d types.Delivery) {
	fmt.Println(string(d.ToJsonBytes()))
}
