package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitwit/databox"
	"github.com/vitwit/databox/config"
	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewZapLogger(cfg.LogLevel)

	box, err := databox.New(cfg,
		databox.WithLogger(log),
		databox.WithMetrics(metrics.NewPrometheusRecorder()),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer box.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := box.Serve(ctx); err != nil {
		log.Error("server stopped", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
