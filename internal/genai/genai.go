// Package genai wires the Genkit runtime and adapts its embedding and
// generation APIs to the narrow interfaces the pipeline packages consume.
//
// Provider selection mirrors the config: gemini (default), ollama for local
// models, openai. Each provider registers its own embedder; ModelName
// returns the fully qualified "provider/model" name Genkit expects.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/docrag/docrag/internal/config"
)

// Runtime bundles the initialized Genkit instance with provider-aware
// lookups for the embedder and model name.
type Runtime struct {
	Genkit   *genkit.Genkit
	provider string
	cfg      *config.Config
}

// Init initializes Genkit with the configured provider's plugin.
func Init(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}

	var g *genkit.Genkit

	switch provider {
	case "ollama":
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case "openai":
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return &Runtime{Genkit: g, provider: provider, cfg: cfg}, nil
}

// Embedder returns the embedder registered by the provider plugin.
func (r *Runtime) Embedder() ai.Embedder {
	switch r.provider {
	case "ollama":
		// Ollama embedders are keyed by server address
		return ollama.Embedder(r.Genkit, r.cfg.OllamaHost)
	case "openai":
		return genkit.LookupEmbedder(r.Genkit, api.NewName("openai", r.cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(r.Genkit, r.cfg.EmbedderModel)
	}
}

// ModelName returns the fully qualified model name for ai.WithModelName.
func (r *Runtime) ModelName() string {
	switch r.provider {
	case "ollama":
		return fmt.Sprintf("ollama/%s", r.cfg.ModelName)
	case "openai":
		return fmt.Sprintf("openai/%s", r.cfg.ModelName)
	default:
		return fmt.Sprintf("googleai/%s", r.cfg.ModelName)
	}
}
