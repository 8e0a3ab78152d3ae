package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StructureCache stores meeting structures keyed by ISO meeting date.
type StructureCache interface {
	Get(ctx context.Context, isoDate string) (*Structure, bool, error)
	Put(ctx context.Context, s *Structure) error
}

// ---------------------------------------------------------------------------
// In-process cache
// ---------------------------------------------------------------------------

// MemoryCache is a StructureCache held in process memory.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]*Structure
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]*Structure)}
}

// Get returns the structure for isoDate.
func (c *MemoryCache) Get(_ context.Context, isoDate string) (*Structure, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[isoDate]
	return s, ok, nil
}

// Put stores s, replacing any structure for the same date.
func (c *MemoryCache) Put(_ context.Context, s *Structure) error {
	if s == nil || s.Date.IsZero() {
		return errors.New("enhance: structure has no date")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[s.Date.ISO()] = s
	return nil
}

// Dates returns the cached meeting dates.
func (c *MemoryCache) Dates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.items))
	for d := range c.items {
		out = append(out, d)
	}
	return out
}

// ---------------------------------------------------------------------------
// Redis cache
// ---------------------------------------------------------------------------

const defaultRedisPrefix = "agendagraph:structure:"

// RedisCache is a StructureCache shared through Redis. Values are JSON.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithPrefix sets the key prefix.
func WithPrefix(p string) RedisOption {
	return func(c *RedisCache) { c.prefix = p }
}

// WithTTL expires entries after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(c *RedisCache) { c.ttl = d }
}

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(redisURL string, opts ...RedisOption) (*RedisCache, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, opts...), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, prefix: defaultRedisPrefix}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RedisCache) key(isoDate string) string { return c.prefix + isoDate }

// Get returns the structure for isoDate. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, isoDate string) (*Structure, bool, error) {
	raw, err := c.client.Get(ctx, c.key(isoDate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get structure %s: %w", isoDate, err)
	}
	var s Structure
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode structure %s: %w", isoDate, err)
	}
	return &s, true, nil
}

// Put stores s under its meeting date.
func (c *RedisCache) Put(ctx context.Context, s *Structure) error {
	if s == nil || s.Date.IsZero() {
		return errors.New("enhance: structure has no date")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode structure: %w", err)
	}
	if err := c.client.Set(ctx, c.key(s.Date.ISO()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save structure %s: %w", s.Date.ISO(), err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
