// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docrag/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, generation model, embedder model and dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Indexing: chunk size/overlap, embedding batch size and rate
//   - Retrieval: hybrid weight, overfetch factor
//   - Telemetry: OTLP trace export
//
// Error handling uses sentinel errors so callers can classify failures with
// errors.Is; see validation.go for the full range checks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Vector index backend identifiers used in Config.VectorBackend.
const (
	VectorBackendPgvector = "pgvector"
	VectorBackendMemory   = "memory"
)

// DefaultEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 supports truncation to 768 dimensions via
// OutputDimensionality; the pgvector schema is sized from
// embedding_dimension, so the two must agree.
const DefaultEmbedderModel = "gemini-embedding-001"

// TelemetryConfig configures OTLP trace export. Traces are sent to a local
// collector over OTLP HTTP; the collector handles authentication and
// forwarding.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider  string `mapstructure:"provider" json:"provider"`
	ModelName string `mapstructure:"model_name" json:"model_name"`

	// Embedding configuration
	EmbedderModel      string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int     `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	EmbedBatchSize     int     `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	EmbedRateLimit     float64 `mapstructure:"embed_rate_limit" json:"embed_rate_limit"` // Batches per second; 0 disables

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Vector index backend: "pgvector" (default) or "memory"
	VectorBackend string `mapstructure:"vector_backend" json:"vector_backend"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	HybridVectorWeight float64 `mapstructure:"hybrid_vector_weight" json:"hybrid_vector_weight"`
	OverfetchFactor    int     `mapstructure:"overfetch_factor" json:"overfetch_factor"`

	// Data directory for uploaded knowledge base files
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// HTTP server address
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docrag")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on invalid configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedding_dimension", 768)
	viper.SetDefault("embed_batch_size", 64)
	viper.SetDefault("embed_rate_limit", 0.0)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docrag")
	viper.SetDefault("postgres_password", "docrag_dev_password")
	viper.SetDefault("postgres_db_name", "docrag")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Vector index defaults
	viper.SetDefault("vector_backend", VectorBackendPgvector)

	// Chunking defaults (characters)
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)

	// Retrieval defaults: equal weighting, 2x overfetch for hybrid merge
	viper.SetDefault("hybrid_vector_weight", 0.5)
	viper.SetDefault("overfetch_factor", 2)

	// Data and server defaults
	viper.SetDefault("data_dir", "")
	viper.SetDefault("http_addr", "127.0.0.1:8300")

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.environment", "dev")
	viper.SetDefault("telemetry.service_name", "docrag")
}

// bindEnvVariables binds environment variable overrides explicitly.
// Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by
// the AI SDK, not via Viper; Validate checks their presence per provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DOCRAG_PROVIDER")
	mustBind("model_name", "DOCRAG_MODEL_NAME")
	mustBind("embedder_model", "DOCRAG_EMBEDDER_MODEL")
	mustBind("ollama_host", "DOCRAG_OLLAMA_HOST")
	mustBind("vector_backend", "DOCRAG_VECTOR_BACKEND")
	mustBind("data_dir", "DOCRAG_DATA_DIR")
	mustBind("http_addr", "DOCRAG_HTTP_ADDR")
	mustBind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON masks sensitive fields so a Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // Avoid recursion
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = maskedValue
	}
	return json.Marshal(masked)
}
