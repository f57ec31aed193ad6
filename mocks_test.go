package chatsvc

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPreferenceRepository is a mock type for the PreferenceRepository interface
type MockPreferenceRepository struct {
	mock.Mock
}

func (_m *MockPreferenceRepository) Get(ctx context.Context, userID int64) (*UserModelPreference, error) {
	args := _m.Called(ctx, userID)
	var r0 *UserModelPreference
	if args.Get(0) != nil {
		r0 = args.Get(0).(*UserModelPreference)
	}
	return r0, args.Error(1)
}

func (_m *MockPreferenceRepository) Create(ctx context.Context, pref UserModelPreference) error {
	args := _m.Called(ctx, pref)
	return args.Error(0)
}

func (_m *MockPreferenceRepository) GetOrCreate(ctx context.Context, userID int64, defaults UserModelPreference) (*UserModelPreference, error) {
	args := _m.Called(ctx, userID, defaults)
	if rf, ok := args.Get(0).(func(context.Context, int64, UserModelPreference) (*UserModelPreference, error)); ok {
		return rf(ctx, userID, defaults)
	}

	var r0 *UserModelPreference
	if args.Get(0) != nil {
		r0 = args.Get(0).(*UserModelPreference)
	}
	return r0, args.Error(1)
}

// MockCompletionClient is a mock type for the CompletionClient interface
type MockCompletionClient struct {
	mock.Mock
}

func (_m *MockCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	args := _m.Called(ctx, request)
	if rf, ok := args.Get(0).(func(context.Context, CompletionRequest) (*CompletionResult, error)); ok {
		return rf(ctx, request)
	}

	var r0 *CompletionResult
	if args.Get(0) != nil {
		r0 = args.Get(0).(*CompletionResult)
	}
	return r0, args.Error(1)
}

// MockHistoryStore is a mock type for the HistoryStore interface
type MockHistoryStore struct {
	mock.Mock
}

func (_m *MockHistoryStore) GetHistory(ctx context.Context, userID int64) ([]Message, error) {
	args := _m.Called(ctx, userID)
	var r0 []Message
	if args.Get(0) != nil {
		r0 = args.Get(0).([]Message)
	}
	return r0, args.Error(1)
}

func (_m *MockHistoryStore) SaveHistory(ctx context.Context, userID int64, messages []Message) error {
	args := _m.Called(ctx, userID, messages)
	return args.Error(0)
}

func (_m *MockHistoryStore) ClearHistory(ctx context.Context, userID int64) error {
	args := _m.Called(ctx, userID)
	return args.Error(0)
}

// MockResolver is a mock type for the Resolver interface
type MockResolver struct {
	mock.Mock
}

func (_m *MockResolver) Resolve(ctx context.Context, userID int64, override *ModelType) (EffectiveModel, error) {
	args := _m.Called(ctx, userID, override)
	return args.Get(0).(EffectiveModel), args.Error(1)
}
