// Package store builds the cache table backend named in configuration.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mdshimul186/reqcoord"
	"github.com/mdshimul186/reqcoord/store/bigcachestore"
	"github.com/mdshimul186/reqcoord/store/redisstore"
)

// Open returns the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg reqcoord.StoreConfig, logger *zap.Logger) (reqcoord.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case "", reqcoord.BackendMemory:
		logger.Info("Using in-memory cache store", zap.Int("shards", cfg.Shards))
		return reqcoord.NewMemoryStore(cfg.Shards), nil
	case reqcoord.BackendBigCache:
		logger.Info("Using bigcache store", zap.Int("shards", cfg.BigCache.Shards))
		s, err := bigcachestore.New(ctx, cfg.BigCache, logger.Named("bigcache"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case reqcoord.BackendRedis:
		logger.Info("Using redis store", zap.String("addr", cfg.Redis.Addr), zap.String("prefix", cfg.Redis.Prefix))
		s, err := redisstore.Open(ctx, cfg.Redis, logger.Named("redis"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", reqcoord.ErrInvalidConfig, cfg.Backend)
	}
}
