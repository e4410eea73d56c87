package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a string-keyed read-through cache. It is never authoritative:
// any Redis failure is treated as a miss.
type Cache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
}

// New creates a Cache whose keys all live under namespace.
func New(client *redis.Client, namespace string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, namespace: namespace, ttl: ttl, logger: logger}
}

func (c *Cache) key(k string) string {
	return c.namespace + ":" + k
}

// GetOrLoad returns the cached value for key, or calls load and stores its result.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == nil {
		var v T
		if uErr := json.Unmarshal(raw, &v); uErr == nil {
			return v, nil
		}
		c.logger.Debug("Discarding undecodable cache entry", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if encoded, mErr := json.Marshal(v); mErr == nil {
		if sErr := c.client.Set(ctx, c.key(key), encoded, c.ttl).Err(); sErr != nil {
			c.logger.Debug("Cache write failed", zap.String("key", key), zap.Error(sErr))
		}
	}
	return v, nil
}

// InvalidatePrefix deletes every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	if c == nil {
		return nil
	}

	pattern := c.key(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
