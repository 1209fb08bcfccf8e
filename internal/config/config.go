// Package config provides application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (INKBASE_ prefix, plus DATABASE_URL)
//  2. Config file (~/.inkbase/config.yaml)
//  3. Defaults
//
// Categories:
//   - AI: provider, generative model, embedder model and dimension
//   - Retrieval: chunk size, overlap, top-k, context budget, embed rate
//   - Storage: PostgreSQL connection (see storage.go)
//   - Observability: OTLP trace endpoint
//
// Sensitive values (the Postgres password) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation. Wrap with
// fmt.Errorf("%w: details", ErrXxx) so callers can use errors.Is.
var (
	ErrConfigNil            = errors.New("configuration is nil")
	ErrInvalidProvider      = errors.New("invalid provider")
	ErrInvalidModelName     = errors.New("invalid model name")
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")
	ErrInvalidDimension     = errors.New("invalid embedder dimension")
	ErrInvalidChunking      = errors.New("invalid chunking parameters")
	ErrInvalidTopK          = errors.New("invalid top-k")
	ErrInvalidContextBudget = errors.New("invalid context budget")
	ErrInvalidPostgresHost  = errors.New("invalid PostgreSQL host")
	ErrInvalidPostgresPort  = errors.New("invalid PostgreSQL port")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultEmbedderModel is the default Gemini embedder.
// text-embedding-004 produces 768-dimension vectors; the dimension is
// recorded per collection and enforced on every upsert.
const DefaultEmbedderModel = "text-embedding-004"

// DefaultEmbedderDimension matches DefaultEmbedderModel.
const DefaultEmbedderDimension = 768

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	// EmbedderDimension is the vector size the embedder model produces.
	// Collections are created with this dimension; changing the embedder
	// model requires a new collection and full re-ingestion.
	EmbedderDimension int    `mapstructure:"embedder_dimension"`
	OllamaHost        string `mapstructure:"ollama_host"`

	// Retrieval pipeline constants. Explicit configuration rather than
	// embedded literals so the core stays testable against varying corpora.
	Collection    string  `mapstructure:"collection"`
	ChunkRunes    int     `mapstructure:"chunk_runes"`
	OverlapRunes  int     `mapstructure:"overlap_runes"`
	TopK          int     `mapstructure:"top_k"`
	ContextRunes  int     `mapstructure:"context_runes"`
	EmbedRPS      float64 `mapstructure:"embed_rps"`

	// LockDir holds per-source ingest lock files. Empty disables
	// cross-process locking (in-process locking always applies).
	LockDir string `mapstructure:"lock_dir"`

	// PostgreSQL connection settings (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// OTLPEndpoint enables trace export when non-empty (host:port of an
	// OTLP/HTTP collector).
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("INKBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching files or env.
// Used by tests and ephemeral (in-memory index) runs.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("collection", "sources")
	v.SetDefault("chunk_runes", 1200)
	v.SetDefault("overlap_runes", 200)
	v.SetDefault("top_k", 6)
	v.SetDefault("context_runes", 6000)
	v.SetDefault("embed_rps", 5.0)

	if dir, err := configDir(); err == nil {
		v.SetDefault("lock_dir", filepath.Join(dir, "locks"))
	}

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "inkbase")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "inkbase")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("otlp_endpoint", "")
}

// configDir returns ~/.inkbase, creating it with restrictive permissions.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".inkbase")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
