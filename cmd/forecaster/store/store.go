// Package store builds the artifact store selected by the configuration.
//
//   - memory: process-local, lost on restart. Artifacts trained by the
//     trainer binary are invisible to the server with this backend.
//   - redis: shared between the trainer and any number of servers.
//
// Initialization fails fast: a redis backend that cannot be pinged is an
// error, never a silent fallback to memory.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Phantawat/BreatheEasy/cmd/forecaster/config"
	"github.com/Phantawat/BreatheEasy/pkg/storage"
)

// Store is a storage.Store that must be closed.
type Store interface {
	storage.Store
	Close() error
}

type memory struct{ *storage.MemoryStore }

func (m memory) Close() error {
	m.Stop()
	return nil
}

// New creates the configured store.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.ArtifactTTL,
		)
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ArtifactTTL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			_ = redisStore.Close()
			return nil, fmt.Errorf("redis health check: %w", err)
		}
		logger.Info("redis storage initialized successfully")
		return redisStore, nil

	case "memory", "":
		logger.Info("initializing in-memory storage", "ttl", cfg.ArtifactTTL)
		if cfg.ArtifactTTL > 0 {
			return memory{storage.NewMemoryStoreWithTTL(cfg.ArtifactTTL, time.Minute)}, nil
		}
		return memory{storage.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}
}
