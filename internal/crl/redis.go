package crl

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKey = "lcp:crl"

type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
}

// RedisCache shares the revocation list between processes through Redis.
type RedisCache struct {
	store cmdable
}

// NewRedisCache connects to the Redis instance described by the URL.
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{store: redis.NewClient(opts)}, nil
}

func newRedisCacheWithStore(store cmdable) *RedisCache {
	return &RedisCache{store: store}
}

func (c *RedisCache) Get(ctx context.Context) ([]byte, error) {
	data, err := c.store.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, crl []byte, ttl time.Duration) error {
	return c.store.Set(ctx, redisKey, crl, ttl).Err()
}
