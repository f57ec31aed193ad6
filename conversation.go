package chatsvc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shaharia-lab/chatsvc/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultSystemPrompt is sent when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant."

// ChatService runs conversation turns: it resolves the model, sends the user's history to the
// completion API and commits the reply. Any failure inside a turn purges the user's history.
type ChatService struct {
	resolver          Resolver
	history           HistoryStore
	client            CompletionClient
	systemPrompt      string
	completionTimeout time.Duration
	reasoningMode     string
	locks             *userLocks
	logger            observability.Logger
}

// ChatServiceOption configures a ChatService.
type ChatServiceOption func(*ChatService)

// WithSystemPrompt sets the instruction sent first in every request. It is never stored
// in history. A blank prompt keeps DefaultSystemPrompt.
func WithSystemPrompt(prompt string) ChatServiceOption {
	return func(s *ChatService) {
		if strings.TrimSpace(prompt) != "" {
			s.systemPrompt = prompt
		}
	}
}

// WithCompletionTimeout bounds each completion call. Zero leaves it to the caller's context.
func WithCompletionTimeout(timeout time.Duration) ChatServiceOption {
	return func(s *ChatService) {
		s.completionTimeout = timeout
	}
}

// WithServiceReasoningMode sets the reasoning mode sent with every request.
func WithServiceReasoningMode(mode string) ChatServiceOption {
	return func(s *ChatService) {
		s.reasoningMode = mode
	}
}

// WithPerUserSerialization runs turns of the same user one at a time, so concurrent turns
// can't overwrite each other's history.
func WithPerUserSerialization(enabled bool) ChatServiceOption {
	return func(s *ChatService) {
		if enabled {
			s.locks = newUserLocks()
		} else {
			s.locks = nil
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger observability.Logger) ChatServiceOption {
	return func(s *ChatService) {
		s.logger = logger
	}
}

// NewChatService creates a ChatService from its collaborators.
func NewChatService(resolver Resolver, history HistoryStore, client CompletionClient, opts ...ChatServiceOption) *ChatService {
	s := &ChatService{
		resolver:      resolver,
		history:       history,
		client:        client,
		systemPrompt:  DefaultSystemPrompt,
		reasoningMode: defaultReasoningMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrNull(s.logger)
	return s
}

// GetCompletion runs one turn for userID. A nil override uses the user's stored preference.
//
// On success the user message and the assistant reply are appended to the stored history.
// On any failure the stored history is cleared and the original error is returned.
func (s *ChatService) GetCompletion(ctx context.Context, userID int64, text string, override *ModelType) (*CompletionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewInvalidInputError("message must not be empty")
	}

	ctx, span := observability.StartSpan(ctx, "ChatService.GetCompletion")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	if s.locks != nil {
		unlock := s.locks.lock(userID)
		defer unlock()
	}

	logger := s.logger.WithContext(ctx).WithFields(map[string]interface{}{"user_id": userID})

	result, err := s.runTurn(ctx, logger, userID, text, override)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		s.purge(ctx, logger, userID)
		return nil, err
	}

	return result, nil
}

func (s *ChatService) runTurn(ctx context.Context, logger observability.Logger, userID int64, text string, override *ModelType) (*CompletionResult, error) {
	model, err := s.resolver.Resolve(ctx, userID, override)
	if err != nil {
		logger.WithErr(err).Error("failed to resolve model")
		return nil, err
	}

	history, err := s.history.GetHistory(ctx, userID)
	if err != nil {
		logger.WithErr(err).Error("failed to load history")
		return nil, err
	}
	history = append(history, Message{Role: UserRole, Text: text})

	request := CompletionRequest{
		ModelURI:          model.ModelURI,
		CompletionOptions: model.CompletionOptions(WithReasoningMode(s.reasoningMode)),
		Messages:          s.buildMessages(history),
	}

	logger.WithFields(map[string]interface{}{
		"model_uri": model.ModelURI,
		"history":   len(history),
	}).Debug("requesting completion")

	result, err := s.complete(ctx, request)
	if err != nil {
		logger.WithErr(err).Error("completion failed")
		return nil, err
	}

	reply, ok := result.FirstMessage()
	if !ok {
		err := NewCompletionError("response contained no alternatives", nil)
		logger.WithErr(err).Error("completion failed")
		return nil, err
	}
	history = append(history, Message{Role: AssistantRole, Text: reply.Text})

	if err := s.history.SaveHistory(ctx, userID, history); err != nil {
		logger.WithErr(err).Error("failed to save history")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{"model_version": result.Result.ModelVersion}).Info("turn completed")
	return result, nil
}

// buildMessages prepends the system prompt to a copy of history.
func (s *ChatService) buildMessages(history []Message) []Message {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: SystemRole, Text: s.systemPrompt})
	return append(messages, history...)
}

func (s *ChatService) complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	if s.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.completionTimeout)
		defer cancel()
	}
	return s.client.Complete(ctx, request)
}

// purge clears the user's history after a failed turn. The purge runs even if ctx was
// cancelled, and its own failure is only logged.
func (s *ChatService) purge(ctx context.Context, logger observability.Logger, userID int64) {
	purgeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.history.ClearHistory(purgeCtx, userID); err != nil {
		logger.WithErr(err).Error("failed to purge history after failed turn")
		return
	}
	logger.Warn("history purged after failed turn")
}

// GetHistory returns the user's stored conversation.
func (s *ChatService) GetHistory(ctx context.Context, userID int64) ([]Message, error) {
	return s.history.GetHistory(ctx, userID)
}

// ClearHistory deletes the user's stored conversation.
func (s *ChatService) ClearHistory(ctx context.Context, userID int64) error {
	if s.locks != nil {
		unlock := s.locks.lock(userID)
		defer unlock()
	}
	return s.history.ClearHistory(ctx, userID)
}

// userLocks hands out one mutex per user, dropping it once nobody holds or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()

	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
