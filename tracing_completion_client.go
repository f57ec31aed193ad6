package chatsvc

import (
	"context"
	"time"

	"github.com/shaharia-lab/chatsvc/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TracingCompletionClient implements the decorator pattern for tracing
type TracingCompletionClient struct {
	client CompletionClient
}

// NewTracingCompletionClient creates a new tracing decorator for any CompletionClient
func NewTracingCompletionClient(client CompletionClient) *TracingCompletionClient {
	return &TracingCompletionClient{
		client: client,
	}
}

// Complete implements CompletionClient with added tracing
func (t *TracingCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	ctx, span := observability.StartSpan(ctx, "CompletionClient.Complete")
	defer span.End()

	startTime := time.Now()
	span.SetAttributes(
		attribute.String("model_uri", request.ModelURI),
		attribute.Int("message_count", len(request.Messages)),
		attribute.Int64("max_tokens", request.CompletionOptions.MaxTokens),
		attribute.Float64("temperature", request.CompletionOptions.Temperature),
	)

	result, err := t.client.Complete(ctx, request)
	if err != nil {
		span.RecordError(err)
		if chatErr, ok := AsChatError(err); ok {
			span.SetAttributes(attribute.String("error_type", string(chatErr.Kind)))
		}
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("model_version", result.Result.ModelVersion),
		attribute.String("total_tokens", result.Result.Usage.TotalTokens),
		attribute.Int("alternative_count", len(result.Result.Alternatives)),
		attribute.Float64("completion_time", time.Since(startTime).Seconds()),
	)

	return result, nil
}
