package chatsvc

import (
	"context"
)

const (
	defaultTemperature = 0.6
	defaultMaxTokens   = 2000
)

// CompletionClient sends one request to a hosted completion API.
type CompletionClient interface {
	Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error)
}

// ReasoningOptions controls the upstream reasoning mode.
type ReasoningOptions struct {
	Mode string `json:"mode"`
}

// CompletionOptions are the generation settings sent with each request.
// MaxTokens travels as a JSON string on the wire.
type CompletionOptions struct {
	Stream           bool             `json:"stream"`
	Temperature      float64          `json:"temperature"`
	MaxTokens        int64            `json:"maxTokens,string"`
	ReasoningOptions ReasoningOptions `json:"reasoningOptions"`
}

// CompletionOption mutates CompletionOptions.
type CompletionOption func(*CompletionOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) CompletionOption {
	return func(o *CompletionOptions) {
		o.Temperature = temperature
	}
}

// WithMaxTokens sets the maximum number of generated tokens.
func WithMaxTokens(maxTokens int64) CompletionOption {
	return func(o *CompletionOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithReasoningMode sets the reasoning mode, e.g. "DISABLED" or "ENABLED_HIDDEN".
func WithReasoningMode(mode string) CompletionOption {
	return func(o *CompletionOptions) {
		o.ReasoningOptions.Mode = mode
	}
}

// NewCompletionOptions returns the default generation settings with opts applied.
func NewCompletionOptions(opts ...CompletionOption) CompletionOptions {
	o := CompletionOptions{
		Stream:           false,
		Temperature:      defaultTemperature,
		MaxTokens:        defaultMaxTokens,
		ReasoningOptions: ReasoningOptions{Mode: defaultReasoningMode},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CompletionRequest is the wire request for one turn.
type CompletionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions CompletionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

// Alternative is one generated completion.
type Alternative struct {
	Message Message `json:"message"`
	Status  string  `json:"status"`
}

// Usage holds token counters. Upstream reports them as decimal strings.
type Usage struct {
	InputTextTokens  string `json:"inputTextTokens"`
	CompletionTokens string `json:"completionTokens"`
	TotalTokens      string `json:"totalTokens"`
}

// Result is the success payload of a completion.
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	Usage        Usage         `json:"usage"`
	ModelVersion string        `json:"modelVersion"`
}

// CompletionResult is what a turn returns to the caller.
type CompletionResult struct {
	Success bool   `json:"success"`
	Result  Result `json:"result"`
}

// FirstMessage returns the text of the first alternative, if any.
func (r *CompletionResult) FirstMessage() (Message, bool) {
	if r == nil || len(r.Result.Alternatives) == 0 {
		return Message{}, false
	}
	return r.Result.Alternatives[0].Message, true
}
