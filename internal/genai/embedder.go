package genai

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/docrag/docrag/internal/rag"
)

// Embedder turns text into vectors through a Genkit ai.Embedder, with an
// optional client-side rate limit since embedding APIs meter requests.
type Embedder struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
}

// NewEmbedder wraps a Genkit embedder. requestsPerSecond <= 0 disables
// rate limiting.
func NewEmbedder(embedder ai.Embedder, requestsPerSecond float64) *Embedder {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Embedder{embedder: embedder, limiter: limiter}
}

// Embed returns one vector per input text, in input order. The whole slice
// goes out as a single embedding request, so callers control batch size.
// Failures wrap rag.ErrEmbedding.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limit: %w", rag.ErrEmbedding, err)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			rag.ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", rag.ErrEmbedding, i)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
