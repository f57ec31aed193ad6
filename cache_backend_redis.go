package chatsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheBackend stores history blobs in Redis.
type RedisCacheBackend struct {
	client redis.UniversalClient
}

// NewRedisCacheBackend wraps an existing Redis client.
func NewRedisCacheBackend(client redis.UniversalClient) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

// NewRedisCacheBackendFromURL connects using a redis:// URL and verifies the connection.
func NewRedisCacheBackendFromURL(ctx context.Context, url string) (*RedisCacheBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheBackend(client), nil
}

// Get returns the value stored under key or ErrCacheMiss.
func (b *RedisCacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key; a zero ttl keeps the key forever.
func (b *RedisCacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Redis DEL on an absent key is already a no-op.
func (b *RedisCacheBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (b *RedisCacheBackend) Close() error {
	return b.client.Close()
}
