// Package store holds the key-value backends the guide cache is written to.
// Every backend is a plain get/set service: single-key overwrites, no
// transactions across keys.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"wuwaguides/pkg/database"
	"wuwaguides/pkg/utils"
)

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("store: key not found")

// KV is the capability the cache needs from a backend.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Backend is a KV with a lifecycle, as constructed by Open.
type Backend interface {
	KV
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the backend named by cfg.Backend. The caller owns the result and
// must Close it.
func Open(cfg utils.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := database.Open(database.Config{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewSQLite(db), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(rdb, cfg.RedisPrefix), nil
	case "file":
		return NewFile(cfg.FileDir)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
