// Command mirror-server stands in for the guide service, replaying responses
// recorded by export-mirror. Point GUIDES_UPSTREAM_BASE_URL at it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wuwaguides/internal/app"
	"wuwaguides/internal/upstream"
	"wuwaguides/pkg/logging"
)

func main() {
	var (
		dir  = flag.String("dir", "data/mirror", "directory of recorded responses")
		addr = flag.String("addr", ":9000", "listen address")
	)
	flag.Parse()

	_, logger, err := app.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(*dir); err != nil {
		logger.Fatal("mirror directory", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))
	r.NoRoute(upstream.MirrorHandler(*dir))

	logger.Info("mirror-server listening", zap.String("addr", *addr), zap.String("dir", *dir))
	if err := r.Run(*addr); err != nil {
		logger.Fatal("mirror-server stopped", zap.Error(err))
	}
}
