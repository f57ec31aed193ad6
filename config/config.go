// Package config loads chatsvc settings from a YAML file, a .env file and CHATSVC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATSVC_YANDEX_API_KEY.
const EnvPrefix = "CHATSVC"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Yandex     YandexConfig     `mapstructure:"yandex"`
	Completion CompletionConfig `mapstructure:"completion"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestBodySize int64         `mapstructure:"max_request_body_size"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// LogConfig selects the logging backend.
type LogConfig struct {
	Backend string `mapstructure:"backend"` // logrus, zap, slog, default
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"` // json, text
}

// DatabaseConfig points at the preference store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite3
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig points at the history cache. An empty URL keeps history in process memory.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// YandexConfig holds the completion API credentials and model addressing.
type YandexConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	FolderID     string  `mapstructure:"folder_id"`
	URL          string  `mapstructure:"url"`
	ModelVersion string  `mapstructure:"model_version"` // latest, rc, deprecated
	RateLimit    float64 `mapstructure:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BedrockConfig configures the AWS Bedrock backend. Empty keys fall back to the default AWS credential chain.
type BedrockConfig struct {
	Region          string `mapstructure:"region"`
	Model           string `mapstructure:"model"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// GeminiConfig configures the Google Gemini backend.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// CompletionConfig selects the completion backend and generation defaults.
type CompletionConfig struct {
	Provider      string          `mapstructure:"provider"` // yandex, openai, anthropic, bedrock, gemini, noop
	Timeout       time.Duration   `mapstructure:"timeout"`
	DefaultModel  string          `mapstructure:"default_model"`
	Temperature   float64         `mapstructure:"temperature"`
	MaxTokens     int64           `mapstructure:"max_tokens"`
	ReasoningMode string          `mapstructure:"reasoning_mode"`
	Tracing       bool            `mapstructure:"tracing"`
	OpenAI        OpenAIConfig    `mapstructure:"openai"`
	Anthropic     AnthropicConfig `mapstructure:"anthropic"`
	Bedrock       BedrockConfig   `mapstructure:"bedrock"`
	Gemini        GeminiConfig    `mapstructure:"gemini"`
}

// ChatConfig holds conversation policy.
type ChatConfig struct {
	SystemPrompt       string        `mapstructure:"system_prompt"`
	MaxHistoryMessages int           `mapstructure:"max_history_messages"`
	HistoryTTL         time.Duration `mapstructure:"history_ttl"`
	SerializePerUser   bool          `mapstructure:"serialize_per_user"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	Issuer        string `mapstructure:"issuer"`
	DefaultUserID int64  `mapstructure:"default_user_id"`
}

var defaults = map[string]interface{}{
	"server.host":                  "0.0.0.0",
	"server.port":                  8000,
	"server.read_timeout":          15 * time.Second,
	"server.write_timeout":         90 * time.Second,
	"server.shutdown_timeout":      10 * time.Second,
	"server.max_request_body_size": int64(1 << 20),
	"server.cors_allowed_origins":  []string{"*"},

	"log.backend": "logrus",
	"log.level":   "info",
	"log.format":  "json",

	"database.driver":            "sqlite3",
	"database.dsn":               "file:chatsvc.db?_busy_timeout=5000",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 30 * time.Minute,

	"redis.url": "",

	"yandex.api_key":       "",
	"yandex.folder_id":     "",
	"yandex.url":           "https://llm.api.cloud.yandex.net/foundationModels/v1/completion",
	"yandex.model_version": "latest",
	"yandex.rate_limit":    0.0,
	"yandex.rate_burst":    1,

	"completion.provider":                  "yandex",
	"completion.timeout":                   60 * time.Second,
	"completion.default_model":             "llama",
	"completion.temperature":               0.6,
	"completion.max_tokens":                int64(2000),
	"completion.reasoning_mode":            "DISABLED",
	"completion.tracing":                   true,
	"completion.openai.api_key":            "",
	"completion.openai.base_url":           "",
	"completion.openai.model":              "",
	"completion.anthropic.api_key":         "",
	"completion.anthropic.model":           "",
	"completion.bedrock.region":            "",
	"completion.bedrock.model":             "",
	"completion.bedrock.access_key_id":     "",
	"completion.bedrock.secret_access_key": "",
	"completion.gemini.api_key":            "",
	"completion.gemini.model":              "",

	"chat.system_prompt":        "You are a helpful assistant.",
	"chat.max_history_messages": 0,
	"chat.history_ttl":          time.Duration(0),
	"chat.serialize_per_user":   false,

	"auth.enabled":         true,
	"auth.jwt_secret":      "",
	"auth.issuer":          "",
	"auth.default_user_id": int64(1),
}

// Load reads envFile (if present), then configPath, then environment overrides.
// An empty configPath looks for config.yaml in ./configs and the working directory and
// tolerates its absence.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'text'", c.Log.Format)
	}

	if c.Database.Driver == "" {
		return fmt.Errorf("database.driver is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Yandex.ModelVersion {
	case "latest", "rc", "deprecated":
	default:
		return fmt.Errorf("invalid yandex.model_version: %s, must be 'latest', 'rc' or 'deprecated'", c.Yandex.ModelVersion)
	}

	switch c.Completion.Provider {
	case "yandex", "noop":
	case "openai":
		if c.Completion.OpenAI.APIKey == "" {
			return fmt.Errorf("completion.openai.api_key is required for the openai provider")
		}
	case "anthropic":
		if c.Completion.Anthropic.APIKey == "" {
			return fmt.Errorf("completion.anthropic.api_key is required for the anthropic provider")
		}
	case "bedrock":
		if c.Completion.Bedrock.Region == "" {
			return fmt.Errorf("completion.bedrock.region is required for the bedrock provider")
		}
		if (c.Completion.Bedrock.AccessKeyID == "") != (c.Completion.Bedrock.SecretAccessKey == "") {
			return fmt.Errorf("completion.bedrock.access_key_id and secret_access_key must be set together")
		}
	case "gemini":
		if c.Completion.Gemini.APIKey == "" {
			return fmt.Errorf("completion.gemini.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("invalid completion.provider: %s", c.Completion.Provider)
	}

	if c.Completion.Temperature < 0 || c.Completion.Temperature > 1 {
		return fmt.Errorf("completion.temperature must be within [0, 1], got %v", c.Completion.Temperature)
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("completion.max_tokens must be positive, got %d", c.Completion.MaxTokens)
	}
	if c.Completion.Timeout < 0 {
		return fmt.Errorf("completion.timeout must not be negative")
	}

	if strings.TrimSpace(c.Chat.SystemPrompt) == "" {
		return fmt.Errorf("chat.system_prompt is required")
	}
	if c.Chat.MaxHistoryMessages < 0 {
		return fmt.Errorf("chat.max_history_messages must not be negative")
	}

	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters when auth is enabled")
		}
	} else if c.Auth.DefaultUserID <= 0 {
		return fmt.Errorf("auth.default_user_id must be positive when auth is disabled")
	}

	return nil
}

// ServerAddr returns host:port for the HTTP listener.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
