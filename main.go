package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsaid97/go-spatial-join/config"
	"github.com/bsaid97/go-spatial-join/handlers"
	"github.com/bsaid97/go-spatial-join/observability"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting spatial join",
		"polygons", cfg.PolygonPath,
		"points", cfg.PointsDir,
		"output", cfg.OutputPath,
		"workers", cfg.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := handlers.Run(ctx, cfg, logger, observability.NewMetrics()); err != nil {
		logger.Error("spatial join failed", "error", err)
		stop()
		os.Exit(1)
	}
}
