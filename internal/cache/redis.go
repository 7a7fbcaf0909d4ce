package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// scanBatch is the COUNT hint passed to SCAN during Flush.
const scanBatch = 100

// RedisCache implements Cache on a Redis instance. Keys are namespaced with
// the same prefix as memcached, so Flush only removes this service's entries.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis server at addr. The connection is lazy;
// call Ping to verify it.
func NewRedisCache(addr string, timeout time.Duration) *RedisCache {
	opts := &redis.Options{Addr: addr}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return &RedisCache{client: redis.NewClient(opts)}
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get.
func (c *RedisCache) Get(ctx context.Context, key string) (models.WeatherResult, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.WeatherResult{}, false, nil
		}
		return models.WeatherResult{}, false, err
	}
	var data models.WeatherResult
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.WeatherResult{}, false, fmt.Errorf("decode cached entry %q: %w", key, err)
	}
	return data, true, nil
}

// Set implements Cache.Set. A zero ttl stores the key without expiration.
func (c *RedisCache) Set(ctx context.Context, key string, value models.WeatherResult, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(key), raw, ttl).Err()
}

// Delete implements Cache.Delete.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Flush removes every key under the service prefix. Keys are collected
// before deleting so the scan cursor never runs over a shrinking keyspace.
func (c *RedisCache) Flush(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *RedisCache) Name() string { return BackendRedis }

// Ping checks if Redis is reachable. Used for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
