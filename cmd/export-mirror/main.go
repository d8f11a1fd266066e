// Command export-mirror runs the pipeline against the live guide service and
// records every response it receives, producing a directory mirror-server can
// replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wuwaguides/internal/app"
	"wuwaguides/internal/cache"
	"wuwaguides/internal/store"
	"wuwaguides/internal/upstream"
	"wuwaguides/pkg/models"
)

func main() {
	outDir := flag.String("out", "data/mirror", "directory to record responses into")
	flag.Parse()

	cfg, logger, err := app.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{
		Timeout:   cfg.Upstream.Timeout,
		Transport: &upstream.RecordingTransport{Dir: *outDir, Logger: logger},
	}
	client := app.NewClient(cfg.Upstream, logger, httpClient)

	// documents are thrown away; only the recordings matter
	res := app.NewPipeline(cfg.Upstream, client, cache.NewWriter(store.NewMemory()), logger, nil).Run(ctx)
	if res.Status != models.RunStatusSuccess {
		logger.Fatal("export failed", zap.String("message", res.Message))
	}

	logger.Info("exported mirror",
		zap.String("dir", *outDir),
		zap.Int("characters", res.Cached),
		zap.Int64s("failed", res.Failed),
	)
}
