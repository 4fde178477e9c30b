package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel validation errors, checkable with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbeddingDimension indicates the embedding dimension is out
	// of range for the vector index schema.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidEmbedBatchSize indicates the embedding batch size is out of range.
	ErrInvalidEmbedBatchSize = errors.New("invalid embed batch size")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidVectorBackend indicates an unknown vector index backend.
	ErrInvalidVectorBackend = errors.New("invalid vector backend")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidHybridWeight indicates the hybrid vector weight is outside [0,1].
	ErrInvalidHybridWeight = errors.New("invalid hybrid vector weight")

	// ErrInvalidOverfetchFactor indicates the overfetch factor is below 1.
	ErrInvalidOverfetchFactor = errors.New("invalid overfetch factor")
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for inconsistent or dangerous values.
// It is called by Load; tests exercising individual fields call it directly.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if strings.TrimSpace(c.OllamaHost) == "" {
			return fmt.Errorf("%w: ollama_host must be set for provider %q", ErrInvalidProvider, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (supported: gemini, openai, ollama)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder_model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 16000 {
		return fmt.Errorf("%w: %d (must be 1-16000)", ErrInvalidEmbeddingDimension, c.EmbeddingDimension)
	}
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > 1000 {
		return fmt.Errorf("%w: %d (must be 1-1000)", ErrInvalidEmbedBatchSize, c.EmbedBatchSize)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: postgres_db_name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	switch c.VectorBackend {
	case VectorBackendPgvector, VectorBackendMemory:
	default:
		return fmt.Errorf("%w: %q (supported: pgvector, memory)", ErrInvalidVectorBackend, c.VectorBackend)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.HybridVectorWeight < 0 || c.HybridVectorWeight > 1 {
		return fmt.Errorf("%w: %g (must be in [0,1])", ErrInvalidHybridWeight, c.HybridVectorWeight)
	}
	if c.OverfetchFactor < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidOverfetchFactor, c.OverfetchFactor)
	}

	return nil
}
