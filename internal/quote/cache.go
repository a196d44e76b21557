package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores quotes for a short time.
type Cache interface {
	Get(ctx context.Context, symbol string) (Quote, bool, error)
	// Set stores q under symbol, the normalized symbol the caller asked for.
	Set(ctx context.Context, symbol string, q Quote, ttl time.Duration) error
}

// MemoryCache keeps quotes in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	quote     Quote
	expiresAt time.Time
}

// NewMemoryCache creates a cache that drops expired entries every sweep.
func NewMemoryCache(sweep time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]cacheEntry),
		stop:    make(chan struct{}),
	}
	go c.cleanup(sweep)
	return c
}

// Get returns the unexpired quote for symbol.
func (c *MemoryCache) Get(_ context.Context, symbol string) (Quote, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok || time.Now().After(e.expiresAt) {
		return Quote{}, false, nil
	}
	return e.quote, true, nil
}

// Set stores q under symbol until ttl passes.
func (c *MemoryCache) Set(_ context.Context, symbol string, q Quote, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[symbol] = cacheEntry{
		quote:     q,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the sweeper.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// RedisCache shares quotes between server instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects using a redis:// URL.
func NewRedisCache(rawURL, prefix string) (*RedisCache, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL -> %w", err)
	}
	return NewRedisCacheWithClient(redis.NewClient(opt), prefix), nil
}

// NewRedisCacheWithClient uses an existing client.
func NewRedisCacheWithClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(symbol string) string {
	return c.prefix + symbol
}

// Get reads a cached quote. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, symbol string) (Quote, bool, error) {
	raw, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("redis get -> %w", err)
	}

	var q Quote
	if err = json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false, fmt.Errorf("decode cached quote -> %w", err)
	}
	return q, true, nil
}

// Set writes q as JSON with a redis expiry of ttl.
func (c *RedisCache) Set(ctx context.Context, symbol string, q Quote, ttl time.Duration) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote -> %w", err)
	}
	if err = c.client.Set(ctx, c.key(symbol), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set -> %w", err)
	}
	return nil
}

// Ping checks the connection at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
