// Package grpcserver exposes the standard gRPC health service for the guide
// cache, so orchestrators can probe the same readiness the HTTP API reports.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"wuwaguides/internal/cache"
)

// ServiceName is the health service name clients ask about. The empty name
// reports the same status.
const ServiceName = "wuwaguides.Guides"

var ErrNoManifest = errors.New("manifest not written yet")

// Pinger is the part of a store backend readiness needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness decides whether the cache can serve reads: the store answers and
// a manifest exists.
type Readiness struct {
	Store  Pinger
	Reader *cache.Reader
}

func (r Readiness) Check(ctx context.Context) error {
	if err := r.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if _, err := r.Reader.Manifest(ctx); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrNoManifest
		}
		return err
	}
	return nil
}

type Server struct {
	Ready  Readiness
	Health *health.Server
	Logger *zap.Logger
}

func NewServer(ready Readiness, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{Ready: ready, Health: health.NewServer(), Logger: logger.Named("grpc")}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register installs the health and reflection services on g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.Health)
	reflection.Register(g)
}

// Refresh probes readiness once and publishes the result.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.Ready.Check(ctx); err != nil {
		s.Logger.Debug("not ready", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.set(st)
	return st
}

// Watch refreshes the status every interval until ctx is done, then marks the
// service as shutting down.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(ServiceName, st)
}
