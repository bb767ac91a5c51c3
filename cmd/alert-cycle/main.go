package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-alert-automation/internal/app"
	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/logging"
	"github.com/mr1hm/go-alert-automation/internal/metrics"
)

// alert-cycle runs a single monitoring tick against the configured database
// and prints the cycle report. Alerts it creates wait for approval as usual.
func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "upper bound for the whole cycle")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.New(cfg, metrics.NewMetrics())
	if err != nil {
		logging.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	report := a.Service.RunCycle(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("error writing report", "error", err)
	}
	if report.Errors > 0 {
		a.Close()
		os.Exit(1)
	}
}
