package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeRedis is an in-memory cacheClient.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// countingStore counts backing lookups.
type countingStore struct {
	*MemorySource
	lookups int
	err     error
}

func (c *countingStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	c.lookups++
	if c.err != nil {
		return "", false, c.err
	}
	return c.MemorySource.Lookup(ctx, key)
}

func newCache(next Store) (*RedisCache, *fakeRedis) {
	fr := newFakeRedis()
	return &RedisCache{client: fr, next: next, ttl: 30 * time.Second, logger: quietLogger()}, fr
}

func TestMemorySource(t *testing.T) {
	m := NewMemorySource(map[string]string{"a": "1"})
	ctx := context.Background()

	v, ok, err := m.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok, _ = m.Lookup(ctx, "b")
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "b", "2"))
	v, ok, _ = m.Lookup(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestRedisCache_ReadThrough(t *testing.T) {
	backing := &countingStore{MemorySource: NewMemorySource(map[string]string{KeyMaxBet: "500.00"})}
	cache, fr := newCache(backing)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, ok, err := cache.Lookup(ctx, KeyMaxBet)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "500.00", v)
	}
	assert.Equal(t, 1, backing.lookups)
	assert.Equal(t, 30*time.Second, fr.ttls["settings:"+KeyMaxBet])
}

func TestRedisCache_CachesMisses(t *testing.T) {
	backing := &countingStore{MemorySource: NewMemorySource(nil)}
	cache, _ := newCache(backing)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, ok, err := cache.Lookup(ctx, "unset")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, backing.lookups)
}

func TestRedisCache_RedisDownFallsThrough(t *testing.T) {
	backing := &countingStore{MemorySource: NewMemorySource(map[string]string{"k": "v"})}
	cache, fr := newCache(backing)
	fr.failGet = true

	v, ok, err := cache.Lookup(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestRedisCache_BackingErrorPropagates(t *testing.T) {
	backing := &countingStore{MemorySource: NewMemorySource(nil), err: errors.New("db down")}
	cache, fr := newCache(backing)

	_, _, err := cache.Lookup(context.Background(), "k")
	assert.Error(t, err)
	assert.Empty(t, fr.data, "errors are not cached")
}

func TestRedisCache_SetInvalidates(t *testing.T) {
	backing := &countingStore{MemorySource: NewMemorySource(map[string]string{"k": "old"})}
	cache, _ := newCache(backing)
	ctx := context.Background()

	v, _, _ := cache.Lookup(ctx, "k")
	require.Equal(t, "old", v)

	require.NoError(t, cache.Set(ctx, "k", "new"))
	v, _, _ = cache.Lookup(ctx, "k")
	assert.Equal(t, "new", v)
}

func TestLimits_Defaults(t *testing.T) {
	l := NewLimits(NewMemorySource(nil), quietLogger())
	ctx := context.Background()

	assert.True(t, l.MaxBet(ctx).Equal(decimal.RequireFromString("1000")))
	assert.True(t, l.MaxDeposit(ctx).Equal(decimal.RequireFromString("10000")))
	assert.True(t, l.MinWithdrawal(ctx).Equal(decimal.RequireFromString("10")))

	var nilLimits *Limits
	assert.True(t, nilLimits.MaxBet(ctx).Equal(Default(KeyMaxBet)))
}

func TestLimits_Overrides(t *testing.T) {
	l := NewLimits(NewMemorySource(map[string]string{
		KeyMaxBet:        "250.50",
		KeyMaxDeposit:    "not-a-number",
		KeyMinWithdrawal: "5",
	}), quietLogger())
	ctx := context.Background()

	assert.True(t, l.MaxBet(ctx).Equal(decimal.RequireFromString("250.50")))
	assert.True(t, l.MaxDeposit(ctx).Equal(Default(KeyMaxDeposit)), "parse errors fall back")
	assert.True(t, l.MinWithdrawal(ctx).Equal(decimal.RequireFromString("5")))
}

func TestLimits_LookupErrorFallsBack(t *testing.T) {
	src := &countingStore{MemorySource: NewMemorySource(nil), err: errors.New("db down")}
	l := NewLimits(src, quietLogger())
	assert.True(t, l.MaxBet(context.Background()).Equal(Default(KeyMaxBet)))
}
