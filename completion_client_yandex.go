package chatsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shaharia-lab/chatsvc/observability"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"
)

// DefaultYandexCompletionURL is the foundation models text completion endpoint.
const DefaultYandexCompletionURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// completionResultSchema is the minimal shape of a usable response. Fields outside it are
// ignored so upstream additions never break decoding.
const completionResultSchema = `{
	"type": "object",
	"required": ["result"],
	"properties": {
		"result": {
			"type": "object",
			"required": ["alternatives", "usage", "modelVersion"],
			"properties": {
				"alternatives": {"type": "array"},
				"usage": {"type": "object"},
				"modelVersion": {"type": "string"}
			}
		}
	}
}`

var completionSchemaLoader = gojsonschema.NewStringLoader(completionResultSchema)

// YandexCompletionClient calls the Yandex foundation models completion API over HTTP.
type YandexCompletionClient struct {
	apiKey     string
	folderID   string
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     observability.Logger
}

// YandexOption configures a YandexCompletionClient.
type YandexOption func(*YandexCompletionClient)

// WithYandexURL overrides the completion endpoint.
func WithYandexURL(url string) YandexOption {
	return func(c *YandexCompletionClient) {
		c.url = url
	}
}

// WithFolderID sends the x-folder-id header with every request.
func WithFolderID(folderID string) YandexOption {
	return func(c *YandexCompletionClient) {
		c.folderID = folderID
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) YandexOption {
	return func(c *YandexCompletionClient) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outbound requests to rps per second. Zero or negative disables it.
func WithRateLimit(rps float64, burst int) YandexOption {
	return func(c *YandexCompletionClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithYandexLogger sets the logger.
func WithYandexLogger(logger observability.Logger) YandexOption {
	return func(c *YandexCompletionClient) {
		c.logger = logger
	}
}

// NewYandexCompletionClient creates a client authenticating with apiKey. An empty key is
// accepted here and reported as a configuration error on the first Complete call.
func NewYandexCompletionClient(apiKey string, opts ...YandexOption) *YandexCompletionClient {
	c := &YandexCompletionClient{
		apiKey:     apiKey,
		url:        DefaultYandexCompletionURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observability.OrNull(c.logger)
	return c
}

// Complete sends request and returns the validated result.
func (c *YandexCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	if c.apiKey == "" {
		return nil, NewConfigError("api key is not set")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewCompletionError("rate limit wait failed", err)
		}
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, NewCompletionError("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, NewCompletionError("failed to create request", err)
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.folderID != "" {
		req.Header.Set("x-folder-id", c.folderID)
	}

	c.logger.WithFields(map[string]interface{}{
		"model_uri": request.ModelURI,
		"messages":  len(request.Messages),
	}).Debug("sending completion request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithErr(err).Error("completion request failed")
		return nil, NewCompletionError("failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewCompletionError("failed to read response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.WithFields(map[string]interface{}{"status": resp.StatusCode}).Error("completion api rejected credentials")
		return nil, NewAuthError(fmt.Sprintf("completion api rejected credentials (status %d)", resp.StatusCode))
	}

	return c.decodeResponse(resp.StatusCode, body)
}

func (c *YandexCompletionClient) decodeResponse(status int, body []byte) (*CompletionResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.WithFields(map[string]interface{}{"status": status}).WithErr(err).Error("completion api returned a non-object body")
		return nil, NewCompletionError("invalid response from api", err)
	}

	if upstreamErr, ok := raw["error"]; ok {
		message := upstreamErrorMessage(upstreamErr)
		c.logger.WithFields(map[string]interface{}{"status": status, "upstream_error": message}).Error("completion api returned an error")
		return nil, NewCompletionError(message, nil)
	}

	if status < 200 || status >= 300 {
		return nil, NewCompletionError(fmt.Sprintf("unexpected status code: %d", status), nil)
	}

	result, err := gojsonschema.Validate(completionSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, NewCompletionError("response validation error", err)
	}
	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		c.logger.WithFields(map[string]interface{}{"errors": errorMessages}).Error("invalid response structure")
		return nil, NewCompletionError("invalid response structure: "+strings.Join(errorMessages, "; "), nil)
	}

	var completion CompletionResult
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, NewCompletionError("failed to decode response", err)
	}
	completion.Success = true

	return &completion, nil
}

// upstreamErrorMessage extracts a readable message from an "error" field that may be a
// string or an object carrying a message.
func upstreamErrorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}

	return string(raw)
}
