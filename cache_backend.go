package chatsvc

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by CacheBackend.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// CacheBackend is the key-value store that holds serialized history blobs.
type CacheBackend interface {
	// Get returns the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's connections.
	Close() error
}
