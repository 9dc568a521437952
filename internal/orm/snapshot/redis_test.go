package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheWithClient(client, DefaultConfig())

	t.Cleanup(func() {
		_ = cache.Close()
		mr.Close()
	})
	return cache, mr
}

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	cache, err := NewRedisCache(context.Background(), config)
	require.NoError(t, err)
	defer cache.Close()

	t.Run("connection error", func(t *testing.T) {
		config := DefaultRedisConfig()
		config.Addr = "localhost:99999"
		_, err := NewRedisCache(context.Background(), config)
		assert.Error(t, err)
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		cache, mr := setupTestRedis(t)
		require.NoError(t, cache.Set(ctx, "type:app.User", []byte("body"), 0))

		got, err := cache.Get(ctx, "type:app.User")
		require.NoError(t, err)
		assert.Equal(t, []byte("body"), got)
		assert.True(t, mr.Exists("persist:type:app.User"))
		assert.Zero(t, mr.TTL("persist:type:app.User"))
	})

	t.Run("miss", func(t *testing.T) {
		cache, _ := setupTestRedis(t)
		_, err := cache.Get(ctx, "missing")
		assert.True(t, IsCacheMiss(err))
	})

	t.Run("ttl", func(t *testing.T) {
		cache, mr := setupTestRedis(t)
		require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
		assert.Equal(t, time.Minute, mr.TTL("persist:k"))

		mr.FastForward(2 * time.Minute)
		ok, err := cache.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys and clear keep foreign keys", func(t *testing.T) {
		cache, mr := setupTestRedis(t)
		require.NoError(t, mr.Set("other:key", "x"))
		for _, k := range []string{"type:b", "type:a"} {
			require.NoError(t, cache.Set(ctx, k, []byte(k), 0))
		}

		keys, err := cache.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"type:a", "type:b"}, keys)

		require.NoError(t, cache.Delete(ctx, "type:a"))
		ok, _ := cache.Exists(ctx, "type:a")
		assert.False(t, ok)

		require.NoError(t, cache.Clear(ctx))
		keys, _ = cache.Keys(ctx)
		assert.Empty(t, keys)
		assert.True(t, mr.Exists("other:key"))
	})
}
