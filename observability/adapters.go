package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects and configures a logging backend.
type Options struct {
	// Backend is one of "logrus", "zap", "slog" or "default".
	Backend string
	// Level is one of "debug", "info", "warn" or "error".
	Level string
	// Format is "json" or "text".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger builds a Logger for the requested backend.
func NewLogger(opts Options) (Logger, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Level == "" {
		opts.Level = "info"
	}

	switch strings.ToLower(opts.Backend) {
	case "", "logrus":
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		l := logrus.New()
		l.SetOutput(opts.Output)
		l.SetLevel(level)
		if opts.Format == "json" {
			l.SetFormatter(&logrus.JSONFormatter{})
		} else {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
		return NewLogrusLogger(l), nil

	case "zap":
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var encoder zapcore.Encoder
		if opts.Format == "json" {
			encoder = zapcore.NewJSONEncoder(encCfg)
		} else {
			encoder = zapcore.NewConsoleEncoder(encCfg)
		}
		core := zapcore.NewCore(encoder, zapcore.AddSync(opts.Output), level)
		return NewZapLogger(zap.New(core)), nil

	case "slog":
		var level slog.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		handlerOpts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if opts.Format == "json" {
			handler = slog.NewJSONHandler(opts.Output, handlerOpts)
		} else {
			handler = slog.NewTextHandler(opts.Output, handlerOpts)
		}
		return NewSlogLogger(slog.New(handler)), nil

	case "default":
		return NewDefaultLogger(), nil
	}

	return nil, fmt.Errorf("unknown log backend %q", opts.Backend)
}

// SlogLogger implements the Logger interface using the standard library's slog package
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new SlogLogger with the provided slog.Logger
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *SlogLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}
func (l *SlogLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *SlogLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *SlogLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *SlogLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *SlogLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *SlogLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

// WithFields adds fields to the logger and returns a new SlogLogger
func (l *SlogLogger) WithFields(fields map[string]interface{}) Logger {
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return &SlogLogger{logger: l.logger.With(attrs...)}
}

// WithContext returns the logger unchanged; slog reads context per call.
func (l *SlogLogger) WithContext(ctx context.Context) Logger {
	return l
}

// WithErr adds an error to the logger and returns a new SlogLogger
func (l *SlogLogger) WithErr(err error) Logger {
	return &SlogLogger{logger: l.logger.With(slog.Any(ErrorLogField, err))}
}

// LogrusLogger implements the Logger interface using logrus
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a new LogrusLogger with the provided logrus.Logger
func NewLogrusLogger(logger *logrus.Logger) Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *LogrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *LogrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *LogrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *LogrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }

// WithFields adds fields to the logger and returns a new LogrusLogger
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext adds context to the logger and returns a new LogrusLogger
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	return &LogrusLogger{entry: l.entry.WithContext(ctx)}
}

// WithErr adds an error to the logger and returns a new LogrusLogger
func (l *LogrusLogger) WithErr(err error) Logger {
	return &LogrusLogger{entry: l.entry.WithError(err)}
}

// ZapLogger implements the Logger interface using uber-go/zap
type ZapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewZapLogger creates a new ZapLogger with the provided zap.Logger
func NewZapLogger(logger *zap.Logger) Logger {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ZapLogger{logger: logger, sugar: logger.Sugar()}
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *ZapLogger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *ZapLogger) Info(args ...interface{})  { l.sugar.Info(args...) }
func (l *ZapLogger) Warn(args ...interface{})  { l.sugar.Warn(args...) }
func (l *ZapLogger) Error(args ...interface{}) { l.sugar.Error(args...) }

// WithFields adds fields to the logger and returns a new ZapLogger
func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	zapFields := make([]zapcore.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return NewZapLogger(l.logger.With(zapFields...))
}

// WithContext adds context to the logger and returns a new ZapLogger
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	return l
}

// WithErr adds an error to the logger and returns a new ZapLogger
func (l *ZapLogger) WithErr(err error) Logger {
	return NewZapLogger(l.logger.With(zap.Error(err)))
}
