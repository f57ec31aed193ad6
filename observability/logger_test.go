package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewLogger_Backends(t *testing.T) {
	tests := []struct {
		name    string
		backend string
	}{
		{"logrus", "logrus"},
		{"zap", "zap"},
		{"slog", "slog"},
		{"empty defaults to logrus", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Options{Backend: tt.backend, Level: "info", Format: "json", Output: &buf})
			require.NoError(t, err)

			logger.WithFields(map[string]interface{}{"user_id": 42}).
				WithErr(errors.New("boom")).
				Info("turn failed")
			logger.Debug("hidden at info level")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 1)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
			assert.EqualValues(t, 42, entry["user_id"])
			assert.Equal(t, "boom", entry[ErrorLogField])
			assert.Contains(t, lines[0], "turn failed")
		})
	}
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger(Options{Backend: "syslog"})
	assert.Error(t, err)

	_, err = NewLogger(Options{Backend: "logrus", Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(Options{Backend: "zap", Level: "loud"})
	assert.Error(t, err)
}

func TestDefaultLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger().(*DefaultLogger)
	logger.SetOutput(&buf)

	logger.WithFields(map[string]interface{}{"key": "value"}).Warnf("cache %s", "miss")

	out := buf.String()
	assert.Contains(t, out, "[key=value]")
	assert.Contains(t, out, "[WARN] cache miss")
}

func TestOrNull(t *testing.T) {
	assert.IsType(t, &NullLogger{}, OrNull(nil))

	logger := NewDefaultLogger()
	assert.Same(t, logger, OrNull(logger))
}

func TestStartSpan_UsesParentProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, parent := provider.Tracer("test").Start(context.Background(), "parent")
	_, child := StartSpan(ctx, "child")
	child.End()
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "child", spans[0].Name())
	assert.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent().SpanID())
}
