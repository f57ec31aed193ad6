package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/option"
	"github.com/shaharia-lab/chatsvc"
	"github.com/shaharia-lab/chatsvc/config"
	"github.com/shaharia-lab/chatsvc/observability"
	"github.com/shaharia-lab/chatsvc/server"
)

func newLogger(cfg *config.Config) (observability.Logger, error) {
	return observability.NewLogger(observability.Options{
		Backend: cfg.Log.Backend,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, chatsvc.Dialect, error) {
	dialect, err := chatsvc.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, dialect, nil
}

func newCacheBackend(ctx context.Context, cfg config.RedisConfig, logger observability.Logger) (chatsvc.CacheBackend, error) {
	if cfg.URL == "" {
		logger.Warn("redis.url is empty, keeping history in process memory")
		return chatsvc.NewInMemoryCacheBackend(), nil
	}
	return chatsvc.NewRedisCacheBackendFromURL(ctx, cfg.URL)
}

// newCompletionClient builds the configured backend. The returned cleanup releases provider
// connections and is never nil.
func newCompletionClient(ctx context.Context, cfg *config.Config, logger observability.Logger) (chatsvc.CompletionClient, func(), error) {
	var client chatsvc.CompletionClient
	cleanup := func() {}

	switch cfg.Completion.Provider {
	case "yandex":
		opts := []chatsvc.YandexOption{
			chatsvc.WithYandexURL(cfg.Yandex.URL),
			chatsvc.WithFolderID(cfg.Yandex.FolderID),
			chatsvc.WithHTTPClient(&http.Client{Timeout: cfg.Completion.Timeout}),
			chatsvc.WithYandexLogger(logger),
		}
		if cfg.Yandex.RateLimit > 0 {
			opts = append(opts, chatsvc.WithRateLimit(cfg.Yandex.RateLimit, cfg.Yandex.RateBurst))
		}
		client = chatsvc.NewYandexCompletionClient(cfg.Yandex.APIKey, opts...)
	case "openai":
		var opts []option.RequestOption
		if cfg.Completion.OpenAI.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Completion.OpenAI.BaseURL))
		}
		sdk := chatsvc.NewOpenAIClient(cfg.Completion.OpenAI.APIKey, opts...)
		client = chatsvc.NewOpenAICompletionClient(sdk, cfg.Completion.OpenAI.Model, logger)
	case "anthropic":
		sdk := chatsvc.NewAnthropicClient(cfg.Completion.Anthropic.APIKey)
		client = chatsvc.NewAnthropicCompletionClient(sdk, anthropic.Model(cfg.Completion.Anthropic.Model), logger)
	case "bedrock":
		bc := cfg.Completion.Bedrock
		sdk, err := chatsvc.NewBedrockClient(ctx, bc.Region, bc.AccessKeyID, bc.SecretAccessKey)
		if err != nil {
			return nil, nil, err
		}
		client = chatsvc.NewBedrockCompletionClient(sdk, bc.Model, logger)
	case "gemini":
		service, err := chatsvc.NewGoogleGeminiService(ctx, cfg.Completion.Gemini.APIKey)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := service.Close(); err != nil {
				logger.WithErr(err).Warn("failed to close gemini client")
			}
		}
		client = chatsvc.NewGeminiCompletionClient(service, cfg.Completion.Gemini.Model, logger)
	case "noop":
		logger.Warn("completion.provider is noop, replies echo the last user message")
		client = chatsvc.NewNoOpsCompletionClient()
	default:
		return nil, nil, fmt.Errorf("unknown completion provider %q", cfg.Completion.Provider)
	}

	if cfg.Completion.Tracing {
		client = chatsvc.NewTracingCompletionClient(client)
	}
	return client, cleanup, nil
}

func newChatService(cfg *config.Config, repo chatsvc.PreferenceRepository, backend chatsvc.CacheBackend, client chatsvc.CompletionClient, logger observability.Logger) (*chatsvc.ChatService, error) {
	defaultModel, err := chatsvc.ParseModelType(cfg.Completion.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("completion.default_model: %w", err)
	}

	resolver := chatsvc.NewPreferenceResolver(repo, cfg.Yandex.FolderID,
		chatsvc.WithModelVersion(cfg.Yandex.ModelVersion),
		chatsvc.WithDefaultModel(defaultModel),
		chatsvc.WithDefaultGeneration(cfg.Completion.Temperature, cfg.Completion.MaxTokens),
		chatsvc.WithResolverLogger(logger),
	)

	history := chatsvc.NewCacheHistoryStore(backend,
		chatsvc.WithHistoryTTL(cfg.Chat.HistoryTTL),
		chatsvc.WithMaxHistoryMessages(cfg.Chat.MaxHistoryMessages),
		chatsvc.WithHistoryLogger(logger),
	)

	return chatsvc.NewChatService(resolver, history, client,
		chatsvc.WithSystemPrompt(cfg.Chat.SystemPrompt),
		chatsvc.WithCompletionTimeout(cfg.Completion.Timeout),
		chatsvc.WithServiceReasoningMode(cfg.Completion.ReasoningMode),
		chatsvc.WithPerUserSerialization(cfg.Chat.SerializePerUser),
		chatsvc.WithServiceLogger(logger),
	), nil
}

func newAuthenticator(cfg config.AuthConfig, logger observability.Logger) *server.Authenticator {
	if !cfg.Enabled {
		logger.Warnf("auth is disabled, every request is served as user %d", cfg.DefaultUserID)
		return server.NewStaticAuthenticator(cfg.DefaultUserID)
	}
	return server.NewAuthenticator(cfg.JWTSecret, cfg.Issuer)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	db, dialect, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	repo := chatsvc.NewSQLPreferenceRepository(db, dialect, logger)
	defer repo.Close()

	if err := repo.InitSchema(ctx); err != nil {
		return err
	}

	backend, err := newCacheBackend(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	client, closeClient, err := newCompletionClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	chat, err := newChatService(cfg, repo, backend, client, logger)
	if err != nil {
		return err
	}

	srv := server.New(chat, newAuthenticator(cfg.Auth, logger), server.Options{
		Addr:               cfg.ServerAddr(),
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		MaxRequestBodySize: cfg.Server.MaxRequestBodySize,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}, logger)

	logger.WithFields(map[string]interface{}{
		"version":  version,
		"provider": cfg.Completion.Provider,
		"driver":   string(dialect),
	}).Info("chatsvc starting")

	return srv.Run(ctx)
}

func migrate(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	db, dialect, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	repo := chatsvc.NewSQLPreferenceRepository(db, dialect, logger)
	defer repo.Close()

	if err := repo.InitSchema(ctx); err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{"driver": string(dialect)}).Info("schema is up to date")
	return nil
}
