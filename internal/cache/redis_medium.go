package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisMedium stores keys in Redis so a fleet of kiosks can share one
// local cache when the remote order store is down
type RedisMedium struct {
	client    redis.Cmdable
	namespace string
}

// NewRedisMedium wraps a redis client; keys are prefixed with namespace
func NewRedisMedium(client redis.Cmdable, namespace string) *RedisMedium {
	return &RedisMedium{client: client, namespace: namespace}
}

func (r *RedisMedium) key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

// Get returns the value stored under key
func (r *RedisMedium) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key without expiry
func (r *RedisMedium) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
