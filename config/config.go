// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Providers ProvidersConfig
	Activity  ActivityConfig
	Logging   LoggingConfig

	// ModelCatalog is an optional YAML file replacing the built-in
	// model list.
	ModelCatalog string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	BodyLimit       string
	ShutdownTimeout time.Duration
}

// AuthConfig holds gateway authentication configuration
type AuthConfig struct {
	// MasterKey is the bearer token clients authenticate with. It also
	// derives the credential encryption key. Required.
	MasterKey string
}

// StorageConfig holds credential and activity storage configuration
type StorageConfig struct {
	// Type is "sqlite" or "postgresql"
	Type          string
	SQLitePath    string
	PostgresURL   string
	PostgresConns int
}

// CacheConfig holds OAuth token cache configuration
type CacheConfig struct {
	// RedisURL enables the shared Redis token cache when set; otherwise
	// an in-process cache is used.
	RedisURL string
}

// ProvidersConfig holds per-upstream endpoint overrides, mainly for
// integration testing against mock servers.
type ProvidersConfig struct {
	GeminiBaseURL   string
	GrokBaseURL     string
	SonarBaseURL    string
	GigaChatBaseURL string
	GigaChatAuthURL string
	GigaChatScope   string
}

// ActivityConfig holds activity log buffering configuration
type ActivityConfig struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
}

// LoggingConfig holds slog configuration
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string
	// Format is "text" (tint handler) or "json"
	Format string
}

// Load reads configuration from the environment. Variables are prefixed
// MODELGATE_ (e.g. MODELGATE_PORT); a .env file in the working directory
// is honored when present.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // .env is optional

	v.SetEnvPrefix("MODELGATE")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("STORAGE_TYPE", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/modelgate.db")
	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("ACTIVITY_ENABLED", true)
	v.SetDefault("ACTIVITY_BUFFER_SIZE", 1000)
	v.SetDefault("ACTIVITY_FLUSH_INTERVAL", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("GIGACHAT_SCOPE", "GIGACHAT_API_PERS")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			BodyLimit:       v.GetString("BODY_LIMIT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Auth: AuthConfig{
			MasterKey: v.GetString("MASTER_KEY"),
		},
		Storage: StorageConfig{
			Type:          v.GetString("STORAGE_TYPE"),
			SQLitePath:    v.GetString("SQLITE_PATH"),
			PostgresURL:   v.GetString("POSTGRES_URL"),
			PostgresConns: v.GetInt("POSTGRES_MAX_CONNS"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("REDIS_URL"),
		},
		Providers: ProvidersConfig{
			GeminiBaseURL:   v.GetString("GEMINI_BASE_URL"),
			GrokBaseURL:     v.GetString("GROK_BASE_URL"),
			SonarBaseURL:    v.GetString("SONAR_BASE_URL"),
			GigaChatBaseURL: v.GetString("GIGACHAT_BASE_URL"),
			GigaChatAuthURL: v.GetString("GIGACHAT_AUTH_URL"),
			GigaChatScope:   v.GetString("GIGACHAT_SCOPE"),
		},
		Activity: ActivityConfig{
			Enabled:       v.GetBool("ACTIVITY_ENABLED"),
			BufferSize:    v.GetInt("ACTIVITY_BUFFER_SIZE"),
			FlushInterval: v.GetDuration("ACTIVITY_FLUSH_INTERVAL"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		ModelCatalog: v.GetString("MODEL_CATALOG"),
	}

	if cfg.Auth.MasterKey == "" {
		return nil, fmt.Errorf("MODELGATE_MASTER_KEY is required")
	}
	return cfg, nil
}
