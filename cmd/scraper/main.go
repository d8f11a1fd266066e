// Command scraper runs the guide pipeline once. It is the cron entry point:
// exit status 1 means the run produced no new manifest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wuwaguides/internal/app"
	"wuwaguides/internal/cache"
	"wuwaguides/internal/store"
	"wuwaguides/pkg/models"
)

func main() {
	cfg, logger, err := app.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	client := app.NewClient(cfg.Upstream, logger, nil)
	res := app.NewPipeline(cfg.Upstream, client, cache.NewWriter(backend), logger, nil).Run(ctx)
	_ = backend.Close()

	logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.String("status", res.Status),
		zap.String("message", res.Message),
		zap.Int("cached", res.Cached),
		zap.Int64s("failed", res.Failed),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	_ = logger.Sync()

	if res.Status != models.RunStatusSuccess {
		os.Exit(1)
	}
}
