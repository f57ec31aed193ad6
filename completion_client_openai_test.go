package chatsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport answers every request with a fixed status and body and records the last request body.
type mockTransport struct {
	status   int
	body     string
	err      error
	lastBody []byte
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
	}
	return &http.Response{
		StatusCode: m.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(m.body)),
		Request:    req,
	}, nil
}

func newMockOpenAIClient(transport http.RoundTripper) *OpenAIClient {
	return NewOpenAIClient("test-key",
		option.WithHTTPClient(&http.Client{Transport: transport}),
		option.WithBaseURL("http://openai.test/v1/"),
		option.WithMaxRetries(0),
	)
}

func TestNewOpenAICompletionClient(t *testing.T) {
	tests := []struct {
		name          string
		model         string
		expectedModel string
	}{
		{"with specified model", "gpt-4", "gpt-4"},
		{"with default model", "", string(openai.ChatModelGPT4oMini)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAICompletionClient(newMockOpenAIClient(http.DefaultTransport), tt.model, nil)
			assert.Equal(t, tt.expectedModel, client.model)
			assert.NotNil(t, client.client)
		})
	}
}

func TestOpenAICompletionClient_Complete(t *testing.T) {
	transport := &mockTransport{
		status: http.StatusOK,
		body: `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4-0613",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hi there!"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
		}`,
	}
	client := NewOpenAICompletionClient(newMockOpenAIClient(transport), "gpt-4", nil)

	result, err := client.Complete(context.Background(), testCompletionRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "gpt-4-0613", result.Result.ModelVersion)
	assert.Equal(t, Usage{InputTextTokens: "10", CompletionTokens: "4", TotalTokens: "14"}, result.Result.Usage)
	msg, ok := result.FirstMessage()
	require.True(t, ok)
	assert.Equal(t, "Hi there!", msg.Text)
	assert.Equal(t, AssistantRole, msg.Role)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.lastBody, &sent))
	assert.Equal(t, "gpt-4", sent["model"])
	assert.EqualValues(t, 2000, sent["max_tokens"])
	messages := sent["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", messages[1].(map[string]interface{})["role"])
}

func TestOpenAICompletionClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		wantErr   error
	}{
		{
			name:      "unauthorized",
			transport: &mockTransport{status: http.StatusUnauthorized, body: `{"error":{"message":"bad key","type":"invalid_request_error"}}`},
			wantErr:   ErrAuth,
		},
		{
			name:      "server error",
			transport: &mockTransport{status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`},
			wantErr:   ErrCompletion,
		},
		{
			name:      "transport failure",
			transport: &mockTransport{err: errors.New("dial tcp: connection refused")},
			wantErr:   ErrCompletion,
		},
		{
			name:      "no choices",
			transport: &mockTransport{status: http.StatusOK, body: `{"id":"x","model":"gpt-4","choices":[],"usage":{}}`},
			wantErr:   ErrCompletion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAICompletionClient(newMockOpenAIClient(tt.transport), "gpt-4", nil)
			result, err := client.Complete(context.Background(), testCompletionRequest())

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	got := convertToOpenAIMessages([]Message{
		{Role: SystemRole, Text: "s"},
		{Role: UserRole, Text: "u"},
		{Role: AssistantRole, Text: "a"},
	})
	require.Len(t, got, 3)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"role":"system"`)
	assert.Contains(t, string(raw), `"role":"assistant"`)
}
