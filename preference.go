package chatsvc

import (
	"context"
	"errors"
)

var (
	// ErrPreferenceNotFound is returned by PreferenceRepository.Get when the user has no row.
	ErrPreferenceNotFound = errors.New("preference not found")

	// ErrPreferenceExists is returned by PreferenceRepository.Create when the user already has a row.
	ErrPreferenceExists = errors.New("preference already exists")
)

// UserModelPreference is a user's stored generation settings. There is at most one per user.
type UserModelPreference struct {
	UserID         int64     `json:"user_id"`
	PreferredModel ModelType `json:"preferred_model"`
	Temperature    float64   `json:"temperature"`
	MaxTokens      int64     `json:"max_tokens"`
}

// DefaultPreference is the row created for a user seen for the first time.
func DefaultPreference(userID int64) UserModelPreference {
	return UserModelPreference{
		UserID:         userID,
		PreferredModel: DefaultModel,
		Temperature:    defaultTemperature,
		MaxTokens:      defaultMaxTokens,
	}
}

// PreferenceRepository persists UserModelPreference rows.
type PreferenceRepository interface {
	// Get returns the user's row or ErrPreferenceNotFound.
	Get(ctx context.Context, userID int64) (*UserModelPreference, error)

	// Create inserts pref, returning ErrPreferenceExists if the user already has a row.
	Create(ctx context.Context, pref UserModelPreference) error

	// GetOrCreate returns the user's row, inserting defaults when none exists.
	// Concurrent callers for the same user all observe the same single row.
	GetOrCreate(ctx context.Context, userID int64, defaults UserModelPreference) (*UserModelPreference, error)
}
