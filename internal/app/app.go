// Package app wires configuration into the long-lived pieces every binary
// shares: logger, upstream client, pipeline and token service.
package app

import (
	"net/http"

	"go.uber.org/zap"

	"wuwaguides/internal/auth"
	"wuwaguides/internal/scraper"
	"wuwaguides/internal/upstream"
	"wuwaguides/pkg/logging"
	"wuwaguides/pkg/utils"
)

// Setup loads the configuration and builds the process logger from it.
func Setup() (utils.Config, *zap.Logger, error) {
	cfg, err := utils.Load()
	if err != nil {
		return utils.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return utils.Config{}, nil, err
	}
	return cfg, logger, nil
}

// NewClient builds the guide service client. httpClient may be nil.
func NewClient(cfg utils.UpstreamConfig, logger *zap.Logger, httpClient *http.Client) *upstream.Client {
	return upstream.NewClient(upstream.Options{
		BaseURL:    cfg.BaseURL,
		Language:   cfg.Language,
		Timeout:    cfg.Timeout,
		Attempts:   cfg.Attempts,
		RetryDelay: cfg.RetryDelay,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}

// NewPipeline builds a pipeline over src and sink. events may be nil.
func NewPipeline(cfg utils.UpstreamConfig, src scraper.Source, sink scraper.Sink, logger *zap.Logger, events scraper.Broadcaster) *scraper.Pipeline {
	return scraper.NewPipeline(src, sink, scraper.Options{
		Language: cfg.Language,
		Pacing:   cfg.Pacing,
		Logger:   logger,
		Events:   events,
	})
}

func Tokens(cfg utils.AuthConfig) auth.TokenService {
	return auth.TokenService{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Duration: cfg.JWTDuration,
	}
}
