package chatsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shaharia-lab/chatsvc/observability"
)

const historyKeyPrefix = "chat:history:"

// HistoryStore holds each user's conversation history. Only successfully completed
// turns are ever written; the system prompt is never part of it.
type HistoryStore interface {
	// GetHistory returns the user's messages oldest first, or an empty slice.
	GetHistory(ctx context.Context, userID int64) ([]Message, error)

	// SaveHistory replaces the user's history with messages.
	SaveHistory(ctx context.Context, userID int64, messages []Message) error

	// ClearHistory removes the user's history. Clearing an empty history succeeds.
	ClearHistory(ctx context.Context, userID int64) error
}

// CacheHistoryStore is a HistoryStore that keeps one JSON blob per user in a CacheBackend.
type CacheHistoryStore struct {
	backend     CacheBackend
	ttl         time.Duration
	maxMessages int
	logger      observability.Logger
}

// HistoryStoreOption configures a CacheHistoryStore.
type HistoryStoreOption func(*CacheHistoryStore)

// WithHistoryTTL expires a user's history ttl after its last save.
func WithHistoryTTL(ttl time.Duration) HistoryStoreOption {
	return func(s *CacheHistoryStore) {
		s.ttl = ttl
	}
}

// WithMaxHistoryMessages caps the stored history to the newest n messages. Zero disables the cap.
func WithMaxHistoryMessages(n int) HistoryStoreOption {
	return func(s *CacheHistoryStore) {
		s.maxMessages = n
	}
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(logger observability.Logger) HistoryStoreOption {
	return func(s *CacheHistoryStore) {
		s.logger = logger
	}
}

// NewCacheHistoryStore creates a history store on top of backend.
func NewCacheHistoryStore(backend CacheBackend, opts ...HistoryStoreOption) *CacheHistoryStore {
	s := &CacheHistoryStore{
		backend: backend,
		logger:  observability.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrNull(s.logger)
	return s
}

func historyKey(userID int64) string {
	return fmt.Sprintf("%s%d", historyKeyPrefix, userID)
}

// GetHistory returns the cached history, or an empty slice when none is cached.
func (s *CacheHistoryStore) GetHistory(ctx context.Context, userID int64) ([]Message, error) {
	raw, err := s.backend.Get(ctx, historyKey(userID))
	if errors.Is(err, ErrCacheMiss) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, NewDataAccessError("get history", err)
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, NewDataAccessError("decode history", err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// SaveHistory serializes messages and overwrites the user's key.
func (s *CacheHistoryStore) SaveHistory(ctx context.Context, userID int64, messages []Message) error {
	trimmed := trimHistory(messages, s.maxMessages)
	if len(trimmed) < len(messages) {
		s.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"dropped": len(messages) - len(trimmed),
		}).Debug("history trimmed to window")
	}

	raw, err := json.Marshal(trimmed)
	if err != nil {
		return NewDataAccessError("encode history", err)
	}

	if err := s.backend.Set(ctx, historyKey(userID), raw, s.ttl); err != nil {
		return NewDataAccessError("save history", err)
	}
	return nil
}

// ClearHistory deletes the user's key.
func (s *CacheHistoryStore) ClearHistory(ctx context.Context, userID int64) error {
	if err := s.backend.Delete(ctx, historyKey(userID)); err != nil {
		return NewDataAccessError("clear history", err)
	}
	return nil
}

// trimHistory keeps the newest max messages and never lets the window open on an
// assistant reply whose prompt was cut off.
func trimHistory(messages []Message, max int) []Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	window := messages[len(messages)-max:]
	for len(window) > 0 && window[0].Role == AssistantRole {
		window = window[1:]
	}
	return window
}
