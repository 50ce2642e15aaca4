package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medrex/supply/pkg/config"
)

// RedisNamespace prefixes every key the cache writes to Redis
const RedisNamespace = "supply"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenMedium builds the medium named by cfg.Cache.Backend. The returned
// closer releases any connection the medium holds.
func OpenMedium(ctx context.Context, cfg *config.Config) (Medium, io.Closer, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return NewMemoryMedium(), nopCloser{}, nil

	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr(), err)
		}
		return NewRedisMedium(client, RedisNamespace), client, nil

	case config.CacheBackendFile, "":
		m, err := NewFileMedium(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		return m, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}
}
