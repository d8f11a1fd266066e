package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"wuwaguides/internal/app"
	"wuwaguides/internal/cache"
	"wuwaguides/internal/grpcserver"
	"wuwaguides/internal/store"
)

func main() {
	cfg, logger, err := app.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer backend.Close()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc listen failed", zap.Error(err))
	}

	health := grpcserver.NewServer(grpcserver.Readiness{Store: backend, Reader: cache.NewReader(backend)}, logger)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC health listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		health.Watch(gctx, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("grpc server stopped", zap.Error(err))
		return
	}
	logger.Info("grpc server stopped")
}
