package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// UpstreamConfig describes how the guide service is reached.
type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url" env:"GUIDES_UPSTREAM_BASE_URL"`
	Language   string        `yaml:"language" env:"GUIDES_UPSTREAM_LANGUAGE"`
	Timeout    time.Duration `yaml:"timeout" env:"GUIDES_UPSTREAM_TIMEOUT"`
	Attempts   int           `yaml:"attempts" env:"GUIDES_UPSTREAM_ATTEMPTS"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"GUIDES_UPSTREAM_RETRY_DELAY"`
	Pacing     time.Duration `yaml:"pacing" env:"GUIDES_UPSTREAM_PACING"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Backend       string `yaml:"backend" env:"GUIDES_STORE"` // sqlite | redis | file | memory
	SQLitePath    string `yaml:"sqlite_path" env:"GUIDES_DB_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"GUIDES_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"GUIDES_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"GUIDES_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"GUIDES_REDIS_PREFIX"`
	FileDir       string `yaml:"file_dir" env:"GUIDES_FILE_DIR"`
}

type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr" env:"GUIDES_HTTP_ADDR"`
	GRPCAddr       string `yaml:"grpc_addr" env:"GUIDES_GRPC_ADDR"`
	EventsAddr     string `yaml:"events_addr" env:"GUIDES_EVENTS_ADDR"` // raw TCP event stream; empty disables
	RefreshOnStart bool   `yaml:"refresh_on_start" env:"GUIDES_REFRESH_ON_START"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" env:"GUIDES_JWT_SECRET"`
	JWTIssuer   string        `yaml:"jwt_issuer" env:"GUIDES_JWT_ISSUER"`
	JWTDuration time.Duration `yaml:"jwt_ttl" env:"GUIDES_JWT_TTL"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"GUIDES_LOG_LEVEL"`
	Development bool   `yaml:"development" env:"GUIDES_LOG_DEV"`
}

type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		Upstream: UpstreamConfig{
			BaseURL:    "https://guide-server.aki-game.net",
			Language:   "en",
			Timeout:    20 * time.Second,
			Attempts:   3,
			RetryDelay: 2 * time.Second,
			Pacing:     500 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend:     "sqlite",
			SQLitePath:  filepath.Join(home, ".wuwaguides", "cache.db"),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "wuwaguides:",
			FileDir:     "data",
		},
		Server: ServerConfig{
			HTTPAddr:   ":8080",
			GRPCAddr:   ":9090",
			EventsAddr: ":7070",
		},
		Auth: AuthConfig{
			// dev default (change for production)
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "wuwaguides",
			JWTDuration: 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// GUIDES_CONFIG (if any), then GUIDES_* environment variables.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("GUIDES_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target. Unset variables leave
// the existing field values alone.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream base url is required"))
	}
	if c.Upstream.Attempts < 1 {
		errs = append(errs, fmt.Errorf("upstream attempts must be >= 1, got %d", c.Upstream.Attempts))
	}
	switch c.Store.Backend {
	case "sqlite", "redis", "file", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}
