package chatsvc

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a ChatError. The string value is what callers see as error_type.
type ErrorKind string

const (
	KindConfig       ErrorKind = "ai_config_error"
	KindAuth         ErrorKind = "ai_auth_error"
	KindCompletion   ErrorKind = "ai_completion_error"
	KindDataAccess   ErrorKind = "data_access_error"
	KindInvalidInput ErrorKind = "invalid_input"
	KindTokenMissing ErrorKind = "token_missing"
	KindTokenInvalid ErrorKind = "token_invalid"
	KindTokenExpired ErrorKind = "token_expired"
)

// Sentinel errors matched with errors.Is against any ChatError of the same family.
var (
	ErrConfig       = errors.New("completion api misconfigured")
	ErrAuth         = errors.New("completion api rejected credentials")
	ErrCompletion   = errors.New("completion failed")
	ErrDataAccess   = errors.New("data access failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrToken        = errors.New("token error")
)

// ChatError is the typed error returned by every component of a turn.
//
// Message is safe to show to end users; Err carries the internal cause and is only
// meant for logs.
type ChatError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the internal cause.
func (e *ChatError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a ChatError against the sentinel of its family.
func (e *ChatError) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrCompletion:
		return e.Kind == KindCompletion
	case ErrDataAccess:
		return e.Kind == KindDataAccess
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrToken:
		return e.Kind == KindTokenMissing || e.Kind == KindTokenInvalid || e.Kind == KindTokenExpired
	}
	return false
}

// NewConfigError reports a missing or invalid completion API setting.
func NewConfigError(message string) error {
	return &ChatError{
		Kind:       KindConfig,
		StatusCode: http.StatusInternalServerError,
		Message:    "completion api configuration error: " + message,
	}
}

// NewAuthError reports that the upstream API refused our credential.
func NewAuthError(message string) error {
	if message == "" {
		message = "completion api authorization failed"
	}
	return &ChatError{
		Kind:       KindAuth,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// NewCompletionError wraps any failure to obtain a usable completion.
func NewCompletionError(message string, err error) error {
	return &ChatError{
		Kind:       KindCompletion,
		StatusCode: http.StatusInternalServerError,
		Message:    "failed to get completion: " + message,
		Err:        err,
	}
}

// NewDataAccessError wraps a persistence failure of history or preferences.
func NewDataAccessError(op string, err error) error {
	return &ChatError{
		Kind:       KindDataAccess,
		StatusCode: http.StatusInternalServerError,
		Message:    "data access error during " + op,
		Err:        err,
	}
}

// NewInvalidInputError reports a malformed caller request.
func NewInvalidInputError(message string) error {
	return &ChatError{
		Kind:       KindInvalidInput,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewTokenError reports a bearer token problem detected before a turn starts.
func NewTokenError(kind ErrorKind, message string) error {
	return &ChatError{
		Kind:       kind,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// AsChatError extracts a ChatError from err's chain.
func AsChatError(err error) (*ChatError, bool) {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr, true
	}
	return nil, false
}
