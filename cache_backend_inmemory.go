package chatsvc

import (
	"context"
	"sync"
	"time"
)

type inMemoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e inMemoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InMemoryCacheBackend is an in-process CacheBackend, used for local runs and tests.
// Expired entries are dropped lazily on read.
type InMemoryCacheBackend struct {
	entries map[string]inMemoryEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewInMemoryCacheBackend creates a new, empty InMemoryCacheBackend
func NewInMemoryCacheBackend() *InMemoryCacheBackend {
	return &InMemoryCacheBackend{
		entries: make(map[string]inMemoryEntry),
		now:     time.Now,
	}
}

// Get returns the value stored under key or ErrCacheMiss.
func (s *InMemoryCacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrCacheMiss
	}
	if entry.expired(s.now()) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && current.expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrCacheMiss
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key. A zero ttl keeps the entry until it is deleted.
func (s *InMemoryCacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := inMemoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *InMemoryCacheBackend) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close is a no-op.
func (s *InMemoryCacheBackend) Close() error {
	return nil
}
