package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"wuwaguides/internal/app"
	"wuwaguides/internal/cache"
	"wuwaguides/internal/events"
	"wuwaguides/internal/grpcserver"
	"wuwaguides/internal/guide"
	"wuwaguides/internal/store"
	"wuwaguides/pkg/logging"
	"wuwaguides/pkg/utils"
)

func main() {
	cfg, logger, err := app.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("servers stopped")
}

func run(cfg utils.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	reader := cache.NewReader(backend)
	hub := events.NewHub(logger)
	client := app.NewClient(cfg.Upstream, logger, nil)
	pipeline := app.NewPipeline(cfg.Upstream, client, cache.NewWriter(backend), logger, hub)
	ready := grpcserver.Readiness{Store: backend, Reader: reader}

	handler := guide.NewHandler(reader, pipeline, app.Tokens(cfg.Auth), logger)
	handler.BaseCtx = ctx

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/ws", events.WSHandler(hub))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": cfg.Store.Backend})
	})
	router.GET("/ready", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		stats := hub.Stats()
		if err := ready.Check(rctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"error":       err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})
	handler.RegisterRoutes(router)

	// background runs write to backend: cancel and drain them before it closes
	defer func() {
		stop()
		handler.Wait()
	}()

	if cfg.Server.RefreshOnStart {
		refreshIfEmpty(ctx, reader, handler, logger)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	health := grpcserver.NewServer(ready, logger)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP API listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if cfg.Server.EventsAddr != "" {
		g.Go(func() error {
			return events.NewTCPServer(cfg.Server.EventsAddr, hub).Run(gctx)
		})
	}

	if cfg.Server.GRPCAddr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			logger.Info("gRPC health listening", zap.String("addr", cfg.Server.GRPCAddr))
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			health.Watch(gctx, 15*time.Second)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}

// refreshIfEmpty starts a background run when nothing has been cached yet, so
// a fresh deployment does not wait for the first cron tick.
func refreshIfEmpty(ctx context.Context, reader *cache.Reader, h *guide.Handler, logger *zap.Logger) {
	_, err := reader.Manifest(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("refresh on start: read manifest", zap.Error(err))
		return
	}

	logger.Info("no manifest cached, fetching guides")
	h.StartRun("startup")
}
