package chatsvc

import (
	"context"
	"fmt"
	"sync"
)

// NoOpsCompletionClient implements CompletionClient without calling any API. It is used for
// local development and in tests.
type NoOpsCompletionClient struct {
	result   *CompletionResult
	err      error
	echo     bool
	mu       sync.Mutex
	requests []CompletionRequest
}

// NoOpsOption defines the function signature for option pattern.
type NoOpsOption func(*NoOpsCompletionClient)

// WithNoOpsResult sets a fixed result returned for every request. A nil result keeps echo mode.
func WithNoOpsResult(result *CompletionResult) NoOpsOption {
	return func(n *NoOpsCompletionClient) {
		n.result = result
		n.echo = result == nil
	}
}

// WithNoOpsError makes every request fail with err.
func WithNoOpsError(err error) NoOpsOption {
	return func(n *NoOpsCompletionClient) {
		n.err = err
	}
}

// NewNoOpsCompletionClient creates a new NoOpsCompletionClient. By default it echoes the last
// user message back.
func NewNoOpsCompletionClient(opts ...NoOpsOption) *NoOpsCompletionClient {
	client := &NoOpsCompletionClient{echo: true}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Complete implements CompletionClient.
func (n *NoOpsCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	n.mu.Lock()
	n.requests = append(n.requests, request)
	n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, NewCompletionError("request cancelled", err)
	}
	if n.err != nil {
		return nil, n.err
	}
	if !n.echo {
		result := *n.result
		return &result, nil
	}

	var last string
	for i := len(request.Messages) - 1; i >= 0; i-- {
		if request.Messages[i].Role == UserRole {
			last = request.Messages[i].Text
			break
		}
	}
	return &CompletionResult{
		Success: true,
		Result: Result{
			Alternatives: []Alternative{{
				Message: Message{Role: AssistantRole, Text: fmt.Sprintf("echo: %s", last)},
				Status:  alternativeStatusFinal,
			}},
			Usage:        Usage{InputTextTokens: "0", CompletionTokens: "0", TotalTokens: "0"},
			ModelVersion: "noop",
		},
	}, nil
}

// Requests returns a copy of every request received so far.
func (n *NoOpsCompletionClient) Requests() []CompletionRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]CompletionRequest(nil), n.requests...)
}
