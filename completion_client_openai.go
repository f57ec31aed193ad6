package chatsvc

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shaharia-lab/chatsvc/observability"
)

// OpenAIClientProvider abstracts the OpenAI SDK call used by OpenAICompletionClient.
type OpenAIClientProvider interface {
	// CreateCompletion creates a new chat completion using OpenAI's API.
	CreateCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// OpenAIClient implements the OpenAIClientProvider interface using OpenAI's official SDK.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new instance of OpenAIClient with the provided API key
// and optional client options.
//
// Example usage:
//
//	// Usage against an OpenAI-compatible gateway
//	client := NewOpenAIClient(
//	    "your-api-key",
//	    option.WithBaseURL("https://llm.example.com/v1/"),
//	)
func NewOpenAIClient(apiKey string, opts ...option.RequestOption) *OpenAIClient {
	opts = append(opts, option.WithAPIKey(apiKey))
	return &OpenAIClient{
		client: openai.NewClient(opts...),
	}
}

// CreateCompletion implements the OpenAIClientProvider interface using the OpenAI client.
func (c *OpenAIClient) CreateCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// OpenAICompletionClient serves turns through an OpenAI-compatible chat completions API.
// The request's model URI is not understood by such APIs; the configured model is used instead.
type OpenAICompletionClient struct {
	client OpenAIClientProvider
	model  string
	logger observability.Logger
}

// NewOpenAICompletionClient creates a completion client for model. An empty model defaults
// to gpt-4o-mini.
func NewOpenAICompletionClient(client OpenAIClientProvider, model string, logger observability.Logger) *OpenAICompletionClient {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAICompletionClient{
		client: client,
		model:  model,
		logger: observability.OrNull(logger),
	}
}

// convertToOpenAIMessages converts internal message format to OpenAI's format
func convertToOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	openAIMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case AssistantRole:
			openAIMessages = append(openAIMessages, openai.AssistantMessage(msg.Text))
		case SystemRole:
			openAIMessages = append(openAIMessages, openai.SystemMessage(msg.Text))
		default:
			openAIMessages = append(openAIMessages, openai.UserMessage(msg.Text))
		}
	}
	return openAIMessages
}

// Complete implements CompletionClient.
func (c *OpenAICompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(convertToOpenAIMessages(request.Messages)),
		Model:       openai.F(c.model),
		MaxTokens:   openai.Int(request.CompletionOptions.MaxTokens),
		Temperature: openai.Float(request.CompletionOptions.Temperature),
	}

	completion, err := c.client.CreateCompletion(ctx, params)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{"model": c.model}).WithErr(err).Error("openai completion failed")
		return nil, mapSDKError(err, openAIStatusCode(err))
	}

	result := &CompletionResult{
		Success: true,
		Result: Result{
			ModelVersion: completion.Model,
			Usage: Usage{
				InputTextTokens:  strconv.FormatInt(completion.Usage.PromptTokens, 10),
				CompletionTokens: strconv.FormatInt(completion.Usage.CompletionTokens, 10),
				TotalTokens:      strconv.FormatInt(completion.Usage.TotalTokens, 10),
			},
		},
	}
	for _, choice := range completion.Choices {
		result.Result.Alternatives = append(result.Result.Alternatives, Alternative{
			Message: Message{Role: AssistantRole, Text: choice.Message.Content},
			Status:  alternativeStatusFinal,
		})
	}
	if len(result.Result.Alternatives) == 0 {
		return nil, NewCompletionError("response contained no choices", nil)
	}

	return result, nil
}

func openAIStatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// mapSDKError classifies an SDK failure the same way the HTTP client classifies upstream statuses.
func mapSDKError(err error, status int) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return NewAuthError("")
	}
	return NewCompletionError("upstream request failed", err)
}
