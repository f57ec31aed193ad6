package chatsvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInMemoryCacheBackend(t *testing.T) {
	backend := NewInMemoryCacheBackend()
	assert.NotNil(t, backend)
	assert.NotNil(t, backend.entries)
}

func newTestRedisBackend(t *testing.T) (*RedisCacheBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisCacheBackend(client)
	t.Cleanup(func() { backend.Close() })
	return backend, mr
}

func TestCacheBackends_Contract(t *testing.T) {
	backends := map[string]func(t *testing.T) CacheBackend{
		"in-memory": func(t *testing.T) CacheBackend { return NewInMemoryCacheBackend() },
		"redis": func(t *testing.T) CacheBackend {
			backend, _ := newTestRedisBackend(t)
			return backend
		},
	}

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backend := newBackend(t)

			_, err := backend.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, backend.Set(ctx, "k", []byte("v1"), 0))
			value, err := backend.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), value)

			require.NoError(t, backend.Set(ctx, "k", []byte("v2"), 0))
			value, err = backend.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), value)

			require.NoError(t, backend.Delete(ctx, "k"))
			require.NoError(t, backend.Delete(ctx, "k"))
			_, err = backend.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestInMemoryCacheBackend_TTL(t *testing.T) {
	backend := NewInMemoryCacheBackend()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "k", []byte("v"), time.Minute))

	_, err := backend.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NotContains(t, backend.entries, "k")
}

func TestInMemoryCacheBackend_CopiesValues(t *testing.T) {
	backend := NewInMemoryCacheBackend()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, backend.Set(ctx, "k", value, 0))
	value[0] = 'x'

	stored, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), stored)
}

func TestRedisCacheBackend_TTL(t *testing.T) {
	backend, mr := newTestRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "k", []byte("v"), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	mr.FastForward(2 * time.Hour)
	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheBackend_ConnectionError(t *testing.T) {
	backend, mr := newTestRedisBackend(t)
	mr.Close()

	_, err := backend.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisCacheBackendFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	backend, err := NewRedisCacheBackendFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewRedisCacheBackendFromURL(context.Background(), "not a url")
	assert.Error(t, err)
}
