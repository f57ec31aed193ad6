package chatsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpsCompletionClient(t *testing.T) {
	fixed := &CompletionResult{
		Success: true,
		Result: Result{
			Alternatives: []Alternative{{Message: Message{Role: AssistantRole, Text: "fixed"}, Status: alternativeStatusFinal}},
			ModelVersion: "v1",
		},
	}
	failure := errors.New("boom")

	tests := []struct {
		name     string
		opts     []NoOpsOption
		wantText string
		wantErr  error
	}{
		{name: "echo by default", wantText: "echo: Hello"},
		{name: "fixed result", opts: []NoOpsOption{WithNoOpsResult(fixed)}, wantText: "fixed"},
		{name: "nil result keeps echo", opts: []NoOpsOption{WithNoOpsResult(nil)}, wantText: "echo: Hello"},
		{name: "configured error", opts: []NoOpsOption{WithNoOpsError(failure)}, wantErr: failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewNoOpsCompletionClient(tt.opts...)
			result, err := client.Complete(context.Background(), testCompletionRequest())

			assert.Len(t, client.Requests(), 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			msg, ok := result.FirstMessage()
			require.True(t, ok)
			assert.Equal(t, tt.wantText, msg.Text)
		})
	}
}

func TestNoOpsCompletionClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewNoOpsCompletionClient().Complete(ctx, testCompletionRequest())
	assert.ErrorIs(t, err, ErrCompletion)
	assert.ErrorIs(t, err, context.Canceled)
}
