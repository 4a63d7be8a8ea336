// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./lore.yaml or ~/.lore/lore.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: embedding and caption models, provider selection (see ai.go)
//   - Storage: PostgreSQL connection and store driver (see storage.go)
//   - Retrieval: similarity threshold, top-k, retry budget (see retrieval.go)
//   - Indexing: chunking limits and embedding concurrency (see retrieval.go)
//   - Fetch: web source crawling limits (see fetch.go)
//   - Tracing: OTLP span export (see observability.go)
//   - Knowledge bases: named corpora with fallback files (see retrieval.go)
//
// Security: sensitive data (passwords, API keys) is never logged; the config
// directory uses 0750 permissions.
//
// Error handling uses sentinel errors so callers can branch with errors.Is();
// wrap with context using fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidCaptionModel indicates the caption model is invalid.
	ErrInvalidCaptionModel = errors.New("invalid caption model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidRateLimit indicates the embedding rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidTopK indicates the top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidMinAccepted indicates the acceptance floor is out of range.
	ErrInvalidMinAccepted = errors.New("invalid min accepted")

	// ErrInvalidMaxAttempts indicates the retry budget is out of range.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidConcurrency indicates the embedding concurrency is out of range.
	ErrInvalidConcurrency = errors.New("invalid embed concurrency")

	// ErrInvalidChunkTokens indicates the chunking token limits are inconsistent.
	ErrInvalidChunkTokens = errors.New("invalid chunk token limits")

	// ErrInvalidBatchTokens indicates the embedding batch budget is out of range.
	ErrInvalidBatchTokens = errors.New("invalid batch token budget")

	// ErrInvalidStoreDriver indicates the vector store driver is unknown.
	ErrInvalidStoreDriver = errors.New("invalid store driver")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrNoBases indicates no knowledge bases are configured.
	ErrNoBases = errors.New("no knowledge bases configured")

	// ErrInvalidBase indicates a knowledge base entry is malformed.
	ErrInvalidBase = errors.New("invalid knowledge base")

	// ErrDuplicateBase indicates two knowledge bases share a name.
	ErrDuplicateBase = errors.New("duplicate knowledge base name")

	// ErrInvalidFetch indicates the web fetch limits are out of range.
	ErrInvalidFetch = errors.New("invalid fetch limits")

	// ErrInvalidServerAddr indicates the HTTP listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration (see ai.go)
	Provider      string `mapstructure:"provider" json:"provider"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDim   int    `mapstructure:"embedder_dim" json:"embedder_dim"`
	CaptionModel  string `mapstructure:"caption_model" json:"caption_model"`
	RatePerMinute int    `mapstructure:"rate_per_minute" json:"rate_per_minute"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go)
	StoreDriver      string `mapstructure:"store_driver" json:"store_driver"`
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval and indexing tuning (see retrieval.go)
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`
	Indexing  IndexingConfig  `mapstructure:"indexing" json:"indexing"`

	// Web source crawling (see fetch.go)
	Fetch FetchConfig `mapstructure:"fetch" json:"fetch"`

	// Span export (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// Knowledge bases served by this instance (see retrieval.go)
	KnowledgeBases []BaseConfig `mapstructure:"knowledge_bases" json:"knowledge_bases"`

	// HTTP API listen address (serve mode only)
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// TrustProxy enables X-Real-IP/X-Forwarded-For handling when the
	// server sits behind a reverse proxy. Leave off otherwise: trusting
	// those headers from arbitrary clients defeats per-IP rate limiting.
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lore")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("lore")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(configDir)

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", configDir},
			"config_name", "lore.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("embedder_dim", DefaultEmbedderDim)
	v.SetDefault("caption_model", "gemini-2.5-flash")
	v.SetDefault("rate_per_minute", 50)

	// Ollama defaults
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Storage defaults (matching the local dev database)
	v.SetDefault("store_driver", StorePostgres)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "lore")
	v.SetDefault("postgres_password", "lore_dev_password")
	v.SetDefault("postgres_db_name", "lore")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval defaults
	v.SetDefault("retrieval.similarity_threshold", 0.25)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_accepted", 1)
	v.SetDefault("retrieval.max_attempts", 3)
	v.SetDefault("retrieval.query_timeout", 30*time.Second)
	v.SetDefault("retrieval.call_timeout", 10*time.Second)
	v.SetDefault("retrieval.caption_timeout", 30*time.Second)

	// Indexing defaults
	v.SetDefault("indexing.embed_concurrency", 5)
	v.SetDefault("indexing.max_batch_tokens", 10000)
	v.SetDefault("indexing.chunk_max_tokens", 500)
	v.SetDefault("indexing.chunk_overlap_tokens", 50)

	// Fetch defaults
	v.SetDefault("fetch.parallelism", 2)
	v.SetDefault("fetch.delay", 200*time.Millisecond)
	v.SetDefault("fetch.max_depth", 3)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_pages", 50)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "lore")

	// Server defaults
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("trust_proxy", false)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
//
// Secrets stay out of the config file:
//  1. GEMINI_API_KEY - read directly by Genkit (not via Viper), presence checked in Validate()
//  2. DATABASE_URL - parsed in parseDatabaseURL(), overrides postgres_* keys
//  3. LORE_TRACING_API_KEY - vendor agent key for span export (optional)
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded key pairs cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "LORE_PROVIDER")
	mustBind("embedder_model", "LORE_EMBEDDER_MODEL")
	mustBind("embedder_dim", "LORE_EMBEDDER_DIM")
	mustBind("caption_model", "LORE_CAPTION_MODEL")
	mustBind("ollama_host", "LORE_OLLAMA_HOST")

	mustBind("store_driver", "LORE_STORE_DRIVER")

	mustBind("retrieval.similarity_threshold", "LORE_SIMILARITY_THRESHOLD")
	mustBind("retrieval.top_k", "LORE_TOP_K")

	mustBind("tracing.enabled", "LORE_TRACING_ENABLED")
	mustBind("tracing.endpoint", "LORE_TRACING_ENDPOINT")
	mustBind("tracing.api_key", "LORE_TRACING_API_KEY")

	mustBind("server_addr", "LORE_SERVER_ADDR")
	mustBind("trust_proxy", "LORE_TRUST_PROXY")

	mustBind("log_level", "LORE_LOG_LEVEL")
	mustBind("log_json", "LORE_LOG_JSON")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against
// real secret material.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer ones keep the first
// and last 2 characters for debug utility.
//
// This defends against accidental logging of real secrets. It is NOT
// cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Tracing.APIKey (via TracingConfig.MarshalJSON)
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Base returns the knowledge base with the given name, or false.
func (c *Config) Base(name string) (BaseConfig, bool) {
	for _, b := range c.KnowledgeBases {
		if b.Name == name {
			return b, true
		}
	}
	return BaseConfig{}, false
}
