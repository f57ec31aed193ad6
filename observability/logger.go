package observability

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

const (
	// ErrorLogField is the key used for error fields in logs
	ErrorLogField string = "error"
)

// Logger interface - defines the common logging methods
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithErr(err error) Logger
}

// DefaultLogger - a basic implementation using Go's standard log package
type DefaultLogger struct {
	*log.Logger
	fields map[string]interface{}
	err    error
}

// NewDefaultLogger creates a new DefaultLogger that logs to standard output
func NewDefaultLogger() Logger {
	return &DefaultLogger{
		Logger: log.New(os.Stdout, "", log.LstdFlags),
		fields: make(map[string]interface{}),
	}
}

func (l *DefaultLogger) Debugf(format string, args ...interface{}) {
	l.logWithFields("[DEBUG] ", format, args...)
}
func (l *DefaultLogger) Infof(format string, args ...interface{}) {
	l.logWithFields("[INFO] ", format, args...)
}
func (l *DefaultLogger) Warnf(format string, args ...interface{}) {
	l.logWithFields("[WARN] ", format, args...)
}
func (l *DefaultLogger) Errorf(format string, args ...interface{}) {
	l.logWithFields("[ERROR] ", format, args...)
}

func (l *DefaultLogger) Debug(args ...interface{}) { l.logWithFields("[DEBUG] ", "%v", fmt.Sprint(args...)) }
func (l *DefaultLogger) Info(args ...interface{})  { l.logWithFields("[INFO] ", "%v", fmt.Sprint(args...)) }
func (l *DefaultLogger) Warn(args ...interface{})  { l.logWithFields("[WARN] ", "%v", fmt.Sprint(args...)) }
func (l *DefaultLogger) Error(args ...interface{}) { l.logWithFields("[ERROR] ", "%v", fmt.Sprint(args...)) }

// WithFields - allows adding structured fields to the log
func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	newLogger := &DefaultLogger{
		Logger: l.Logger,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
		err:    l.err,
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

// WithContext - No-op for DefaultLogger. Returns itself.
func (l *DefaultLogger) WithContext(ctx context.Context) Logger {
	return l
}

// WithErr - allows adding an error to the log
func (l *DefaultLogger) WithErr(err error) Logger {
	return &DefaultLogger{
		Logger: l.Logger,
		fields: l.fields,
		err:    err,
	}
}

func (l *DefaultLogger) logWithFields(level string, format string, args ...interface{}) {
	var parts []string
	for k, v := range l.fields {
		parts = append(parts, fmt.Sprintf("%v=%v", k, v))
	}
	if l.err != nil {
		parts = append(parts, fmt.Sprintf("%s=%v", ErrorLogField, l.err))
	}
	prefix := ""
	if len(parts) > 0 {
		prefix = fmt.Sprintf("[%s] ", strings.Join(parts, " "))
	}
	l.Logger.Printf(prefix+level+format, args...)
}

// NullLogger - a logger that does nothing
type NullLogger struct{}

// NewNullLogger creates a new NullLogger
func NewNullLogger() Logger {
	return &NullLogger{}
}

func (l *NullLogger) Debugf(format string, args ...interface{}) {}
func (l *NullLogger) Infof(format string, args ...interface{})  {}
func (l *NullLogger) Warnf(format string, args ...interface{})  {}
func (l *NullLogger) Errorf(format string, args ...interface{}) {}

func (l *NullLogger) Debug(args ...interface{}) {}
func (l *NullLogger) Info(args ...interface{})  {}
func (l *NullLogger) Warn(args ...interface{})  {}
func (l *NullLogger) Error(args ...interface{}) {}

func (l *NullLogger) WithFields(fields map[string]interface{}) Logger { return l }
func (l *NullLogger) WithContext(ctx context.Context) Logger          { return l }
func (l *NullLogger) WithErr(err error) Logger                        { return l }

// OrNull returns logger, or a NullLogger when logger is nil.
func OrNull(logger Logger) Logger {
	if logger == nil {
		return NewNullLogger()
	}
	return logger
}
