package chatsvc

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shaharia-lab/chatsvc/observability"
)

// AnthropicClientProvider defines the interface for interacting with Anthropic's API.
type AnthropicClientProvider interface {
	// CreateMessage creates a new message using Anthropic's API.
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// AnthropicClient implements the AnthropicClientProvider interface using Anthropic's official SDK.
type AnthropicClient struct {
	messages *anthropic.MessageService
}

// NewAnthropicClient creates a new instance of AnthropicClient with the provided API key.
//
// Example usage:
//
//	client := NewAnthropicClient("your-api-key")
//	completions := NewAnthropicCompletionClient(client, anthropic.ModelClaude_3_5_Haiku_latest, logger)
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) *AnthropicClient {
	opts = append(opts, option.WithAPIKey(apiKey))
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		messages: client.Messages,
	}
}

// CreateMessage implements the AnthropicClientProvider interface using the Anthropic client.
func (c *AnthropicClient) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.messages.New(ctx, params)
}

// AnthropicCompletionClient serves turns through Anthropic's Messages API. System messages
// are sent through the dedicated system parameter.
type AnthropicCompletionClient struct {
	client AnthropicClientProvider
	model  anthropic.Model
	logger observability.Logger
}

// NewAnthropicCompletionClient creates a completion client for model. If no model is
// specified, it defaults to Claude 3.5 Sonnet.
func NewAnthropicCompletionClient(client AnthropicClientProvider, model anthropic.Model, logger observability.Logger) *AnthropicCompletionClient {
	if model == "" {
		model = anthropic.ModelClaude_3_5_Sonnet_20240620
	}
	return &AnthropicCompletionClient{
		client: client,
		model:  model,
		logger: observability.OrNull(logger),
	}
}

// prepareMessageParams converts a CompletionRequest into Anthropic message parameters.
func (c *AnthropicCompletionClient) prepareMessageParams(request CompletionRequest) anthropic.MessageNewParams {
	var anthropicMessages []anthropic.MessageParam
	var system []anthropic.TextBlockParam

	for _, msg := range request.Messages {
		switch msg.Role {
		case SystemRole:
			system = append(system, anthropic.NewTextBlock(msg.Text))
		case AssistantRole:
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text)))
		default:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.F(c.model),
		Messages:    anthropic.F(anthropicMessages),
		MaxTokens:   anthropic.F(request.CompletionOptions.MaxTokens),
		Temperature: anthropic.Float(request.CompletionOptions.Temperature),
	}
	if len(system) > 0 {
		params.System = anthropic.F(system)
	}

	return params
}

// Complete implements CompletionClient.
func (c *AnthropicCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	message, err := c.client.CreateMessage(ctx, c.prepareMessageParams(request))
	if err != nil {
		c.logger.WithFields(map[string]interface{}{"model": c.model}).WithErr(err).Error("anthropic completion failed")
		return nil, mapSDKError(err, anthropicStatusCode(err))
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch block := block.AsUnion().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		default:
		}
	}
	if text.Len() == 0 {
		return nil, NewCompletionError("response contained no text", nil)
	}

	input := message.Usage.InputTokens
	output := message.Usage.OutputTokens
	return &CompletionResult{
		Success: true,
		Result: Result{
			Alternatives: []Alternative{{
				Message: Message{Role: AssistantRole, Text: text.String()},
				Status:  alternativeStatusFinal,
			}},
			Usage: Usage{
				InputTextTokens:  strconv.FormatInt(input, 10),
				CompletionTokens: strconv.FormatInt(output, 10),
				TotalTokens:      strconv.FormatInt(input+output, 10),
			},
			ModelVersion: string(message.Model),
		},
	}, nil
}

func anthropicStatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
