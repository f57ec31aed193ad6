// Package chatsvc mediates conversations between users and a hosted completion API,
// keeping per-user history in a key-value cache and per-user model preferences in a
// relational store.
package chatsvc

import (
	"fmt"
)

// MessageRole identifies the author of a Message.
type MessageRole string

const (
	// SystemRole marks the instruction message that primes the model.
	SystemRole MessageRole = "system"
	// UserRole marks messages written by the end user.
	UserRole MessageRole = "user"
	// AssistantRole marks messages generated by the model.
	AssistantRole MessageRole = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r MessageRole) Valid() bool {
	switch r {
	case SystemRole, UserRole, AssistantRole:
		return true
	}
	return false
}

// Message is a single turn of a conversation. Lists of messages are kept oldest first.
type Message struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// ModelType is the internal identifier of a completion model a user can prefer.
type ModelType string

const (
	ModelYandexGPTLite   ModelType = "yandexgpt-lite"
	ModelYandexGPTPro    ModelType = "yandexgpt"
	ModelYandexGPTPro32K ModelType = "yandexgpt-32k"
	ModelLlama8B         ModelType = "llama-lite"
	ModelLlama70B        ModelType = "llama"
	ModelCustom          ModelType = "custom"

	// DefaultModel is stored for users that have never chosen a model.
	DefaultModel = ModelLlama70B
)

const (
	fallbackModelName      = "llama"
	defaultModelVersion    = "latest"
	modelURIFormat         = "gpt://%s/%s/%s"
	defaultReasoningMode   = "DISABLED"
	alternativeStatusFinal = "ALTERNATIVE_STATUS_FINAL"
)

// modelNames maps a ModelType to the model name used in the upstream model URI.
var modelNames = map[ModelType]string{
	ModelYandexGPTLite:   "yandexgpt-lite",
	ModelYandexGPTPro:    "yandexgpt",
	ModelYandexGPTPro32K: "yandexgpt-32k",
	ModelLlama8B:         "llama-lite",
	ModelLlama70B:        "llama",
	ModelCustom:          "custom",
}

// ParseModelType validates a model identifier received from a caller.
func ParseModelType(s string) (ModelType, error) {
	m := ModelType(s)
	if _, ok := modelNames[m]; !ok {
		return "", NewInvalidInputError(fmt.Sprintf("unknown model type %q", s))
	}
	return m, nil
}

// ModelName returns the upstream model name for m. Unknown values map to "llama" so a
// configuration gap never blocks a turn.
func ModelName(m ModelType) string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fallbackModelName
}

// ModelURI builds the fully qualified model URI for the given folder and version.
func ModelURI(folderID string, m ModelType, version string) string {
	if version == "" {
		version = defaultModelVersion
	}
	return fmt.Sprintf(modelURIFormat, folderID, ModelName(m), version)
}
