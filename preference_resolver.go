package chatsvc

import (
	"context"
	"strconv"
	"time"

	"github.com/shaharia-lab/chatsvc/observability"
	"golang.org/x/sync/singleflight"
)

const preferenceLookupTimeout = 10 * time.Second

// EffectiveModel is what a turn actually runs with once preferences and overrides are applied.
type EffectiveModel struct {
	ModelType   ModelType
	ModelURI    string
	Temperature float64
	MaxTokens   int64
}

// CompletionOptions returns the generation settings for this model.
func (m EffectiveModel) CompletionOptions(extra ...CompletionOption) CompletionOptions {
	opts := append([]CompletionOption{WithTemperature(m.Temperature), WithMaxTokens(m.MaxTokens)}, extra...)
	return NewCompletionOptions(opts...)
}

// Resolver decides which model serves a user's turn.
type Resolver interface {
	Resolve(ctx context.Context, userID int64, override *ModelType) (EffectiveModel, error)
}

// PreferenceResolver resolves models from stored preferences, creating a default row on
// first use.
type PreferenceResolver struct {
	repo     PreferenceRepository
	folderID string
	version  string
	defaults UserModelPreference
	logger   observability.Logger
	group    singleflight.Group
}

// ResolverOption configures a PreferenceResolver.
type ResolverOption func(*PreferenceResolver)

// WithModelVersion sets the version segment of model URIs ("latest", "rc" or "deprecated").
func WithModelVersion(version string) ResolverOption {
	return func(r *PreferenceResolver) {
		r.version = version
	}
}

// WithDefaultGeneration sets the temperature and max tokens used for new rows and overrides.
func WithDefaultGeneration(temperature float64, maxTokens int64) ResolverOption {
	return func(r *PreferenceResolver) {
		r.defaults.Temperature = temperature
		r.defaults.MaxTokens = maxTokens
	}
}

// WithDefaultModel sets the model stored for first-time users.
func WithDefaultModel(model ModelType) ResolverOption {
	return func(r *PreferenceResolver) {
		r.defaults.PreferredModel = model
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) ResolverOption {
	return func(r *PreferenceResolver) {
		r.logger = logger
	}
}

// NewPreferenceResolver creates a resolver that builds URIs under folderID.
func NewPreferenceResolver(repo PreferenceRepository, folderID string, opts ...ResolverOption) *PreferenceResolver {
	r := &PreferenceResolver{
		repo:     repo,
		folderID: folderID,
		version:  defaultModelVersion,
		defaults: DefaultPreference(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = observability.OrNull(r.logger)
	return r
}

// Resolve returns the effective model for userID. A non-nil override is used as is and the
// repository is not consulted.
func (r *PreferenceResolver) Resolve(ctx context.Context, userID int64, override *ModelType) (EffectiveModel, error) {
	if override != nil {
		return r.effective(*override, r.defaults.Temperature, r.defaults.MaxTokens), nil
	}

	ch := r.group.DoChan(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		// Shared by every coalesced caller, so no single caller's cancellation may end it.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), preferenceLookupTimeout)
		defer cancel()

		defaults := r.defaults
		defaults.UserID = userID
		return r.repo.GetOrCreate(lookupCtx, userID, defaults)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return EffectiveModel{}, NewDataAccessError("resolve model preference", ctx.Err())
	}
	if res.Err != nil {
		r.logger.WithFields(map[string]interface{}{"user_id": userID}).WithErr(res.Err).Error("failed to resolve model preference")
		return EffectiveModel{}, NewDataAccessError("resolve model preference", res.Err)
	}
	if res.Shared {
		r.logger.WithFields(map[string]interface{}{"user_id": userID}).Debug("preference lookup coalesced")
	}

	pref := res.Val.(*UserModelPreference)
	return r.effective(pref.PreferredModel, pref.Temperature, pref.MaxTokens), nil
}

func (r *PreferenceResolver) effective(model ModelType, temperature float64, maxTokens int64) EffectiveModel {
	return EffectiveModel{
		ModelType:   model,
		ModelURI:    ModelURI(r.folderID, model, r.version),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
