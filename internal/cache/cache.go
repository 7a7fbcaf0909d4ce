package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// Backend names accepted by cache.backend.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Cache stores lookup results keyed by the location text.
// Get returns (value, true, nil) on hit and (zero, false, nil) on miss.
// A ttl of zero means the entry is kept until deleted or flushed.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherResult, bool, error)
	Set(ctx context.Context, key string, value models.WeatherResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	Name() string
}

// InMemoryCache implements Cache using a mutex-protected map.
// Entries with a non-zero TTL are removed on access once expired.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.WeatherResult
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get retrieves the cached result for key.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherResult, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.WeatherResult{}, false, nil
	}

	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return models.WeatherResult{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under key, replacing any previous entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherResult, ttl time.Duration) error {
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Flush removes every entry.
func (c *InMemoryCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *InMemoryCache) Name() string { return BackendInMemory }
