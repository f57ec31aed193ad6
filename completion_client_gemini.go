package chatsvc

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/shaharia-lab/chatsvc/observability"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultGeminiModel = "gemini-1.5-flash"

	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiTurn is one generation call against a Gemini model.
type GeminiTurn struct {
	Model   string
	System  *genai.Content
	Config  genai.GenerationConfig
	History []*genai.Content
	Parts   []genai.Part
}

// GeminiModelService sends a turn to Gemini.
type GeminiModelService interface {
	SendMessage(ctx context.Context, turn GeminiTurn) (*genai.GenerateContentResponse, error)
}

// GoogleGeminiService implements GeminiModelService using the genai client.
type GoogleGeminiService struct {
	client *genai.Client
}

// NewGoogleGeminiService creates a genai client authenticated with apiKey.
func NewGoogleGeminiService(ctx context.Context, apiKey string) (*GoogleGeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GoogleGeminiService{client: client}, nil
}

// SendMessage builds a fresh model per call so concurrent turns never share configuration.
func (g *GoogleGeminiService) SendMessage(ctx context.Context, turn GeminiTurn) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(turn.Model)
	model.GenerationConfig = turn.Config
	model.SystemInstruction = turn.System

	session := model.StartChat()
	session.History = turn.History
	return session.SendMessage(ctx, turn.Parts...)
}

// Close releases the underlying connection.
func (g *GoogleGeminiService) Close() error {
	return g.client.Close()
}

// GeminiCompletionClient serves turns through Google Gemini.
type GeminiCompletionClient struct {
	service GeminiModelService
	model   string
	logger  observability.Logger
}

// NewGeminiCompletionClient creates a completion client for model, defaulting to Gemini 1.5 Flash.
func NewGeminiCompletionClient(service GeminiModelService, model string, logger observability.Logger) *GeminiCompletionClient {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiCompletionClient{
		service: service,
		model:   model,
		logger:  observability.OrNull(logger),
	}
}

func (c *GeminiCompletionClient) turn(request CompletionRequest) (GeminiTurn, error) {
	turn := GeminiTurn{Model: c.model}
	turn.Config.SetTemperature(float32(request.CompletionOptions.Temperature))
	turn.Config.SetMaxOutputTokens(int32(request.CompletionOptions.MaxTokens))

	var system []genai.Part
	var contents []*genai.Content
	for _, msg := range request.Messages {
		switch msg.Role {
		case SystemRole:
			system = append(system, genai.Text(msg.Text))
		case AssistantRole:
			contents = append(contents, &genai.Content{Role: geminiRoleModel, Parts: []genai.Part{genai.Text(msg.Text)}})
		default:
			contents = append(contents, &genai.Content{Role: geminiRoleUser, Parts: []genai.Part{genai.Text(msg.Text)}})
		}
	}
	if len(system) > 0 {
		turn.System = &genai.Content{Parts: system}
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != geminiRoleUser {
		return GeminiTurn{}, NewInvalidInputError("conversation must end with a user message")
	}
	turn.History = contents[:len(contents)-1]
	turn.Parts = contents[len(contents)-1].Parts
	return turn, nil
}

// Complete implements CompletionClient.
func (c *GeminiCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	turn, err := c.turn(request)
	if err != nil {
		return nil, err
	}

	resp, err := c.service.SendMessage(ctx, turn)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{"model": c.model}).WithErr(err).Error("gemini completion failed")
		return nil, mapSDKError(err, geminiStatusCode(err))
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	if text.Len() == 0 {
		return nil, NewCompletionError("response contained no text", nil)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			InputTextTokens:  strconv.Itoa(int(resp.UsageMetadata.PromptTokenCount)),
			CompletionTokens: strconv.Itoa(int(resp.UsageMetadata.CandidatesTokenCount)),
			TotalTokens:      strconv.Itoa(int(resp.UsageMetadata.TotalTokenCount)),
		}
	}

	return &CompletionResult{
		Success: true,
		Result: Result{
			Alternatives: []Alternative{{
				Message: Message{Role: AssistantRole, Text: text.String()},
				Status:  alternativeStatusFinal,
			}},
			Usage:        usage,
			ModelVersion: c.model,
		},
	}, nil
}

// geminiStatusCode translates gRPC auth failures into their HTTP equivalents.
func geminiStatusCode(err error) int {
	switch status.Code(err) {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	}
	return 0
}
