package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attaboy/wallet/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Source resolves configuration values by key.
type Source interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// Store is a Source that can also be written.
type Store interface {
	Source
	Set(ctx context.Context, key, value string) error
}

// --- memory ---

// MemorySource is a map-backed Store.
type MemorySource struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySource creates a MemorySource seeded with values.
func NewMemorySource(values map[string]string) *MemorySource {
	m := &MemorySource{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MemorySource) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemorySource) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// --- postgres ---

// PostgresSource reads the settings table.
type PostgresSource struct {
	pool *pgxpool.Pool
	repo repository.SettingsRepository
}

// NewPostgresSource creates a PostgresSource.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool, repo: repository.NewSettingsRepository()}
}

func (p *PostgresSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	return p.repo.Get(ctx, p.pool, key)
}

func (p *PostgresSource) Set(ctx context.Context, key, value string) error {
	return p.repo.Set(ctx, p.pool, key, value)
}

// --- redis read-through ---

const (
	cacheNamespace = "settings"
	absentMarker   = "\x00absent"
)

// cacheClient is the subset of redis.UniversalClient the cache uses.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache caches another Store in Redis. Misses are cached too, so an
// unset key does not reach the database on every lookup. Redis failures fall
// through to the backing store.
type RedisCache struct {
	client cacheClient
	next   Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache wraps next with a read-through cache.
func NewRedisCache(client redis.UniversalClient, next Store, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, next: next, ttl: ttl, logger: logger}
}

func cacheKey(key string) string { return cacheNamespace + ":" + key }

func (c *RedisCache) Lookup(ctx context.Context, key string) (string, bool, error) {
	cached, err := c.client.Get(ctx, cacheKey(key)).Result()
	switch {
	case err == nil:
		if cached == absentMarker {
			return "", false, nil
		}
		return cached, true, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("settings cache read failed", "key", key, "error", err)
	}

	value, found, err := c.next.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}

	store := value
	if !found {
		store = absentMarker
	}
	if err := c.client.Set(ctx, cacheKey(key), store, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed", "key", key, "error", err)
	}
	return value, found, nil
}

// Set writes through to the backing store and drops the cached value.
func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := c.next.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		c.logger.Warn("settings cache invalidation failed", "key", key, "error", err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
