// Package retriever answers search queries over one knowledge base.
//
// Two modes: vector-only returns raw cosine similarity ranking, hybrid runs
// dense vector search and full-text keyword search side by side and merges
// the two ranked lists into one deduplicated result. When the keyword side
// fails, hybrid search degrades to vector-only and says so in the result
// rather than failing the whole query.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docrag/docrag/internal/rag"
)

// Embedder embeds a search query.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorSearcher is the dense half of hybrid search.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]rag.RetrievedChunk, error)
}

// TextSearcher is the keyword half of hybrid search.
type TextSearcher interface {
	SearchText(ctx context.Context, kbID uuid.UUID, query string, limit int) ([]rag.RetrievedChunk, error)
}

// Options configures a Retriever.
type Options struct {
	// VectorWeight is the dense side's share of the combined score, in
	// [0, 1]. The keyword side gets the remainder. 0.5 weighs both equally.
	VectorWeight float64

	// OverfetchFactor multiplies the requested limit on each side of a
	// hybrid search so the merge has enough candidates. Minimum 1.
	OverfetchFactor int
}

// Result is a completed search.
type Result struct {
	Chunks []rag.RetrievedChunk

	// Degraded is set when a hybrid search fell back to vector-only.
	// Advisory carries the human-readable reason.
	Degraded bool
	Advisory string
}

// Retriever performs vector and hybrid retrieval.
type Retriever struct {
	embedder Embedder
	vectors  VectorSearcher
	texts    TextSearcher
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Retriever.
func New(embedder Embedder, vectors VectorSearcher, texts TextSearcher, opts Options, logger *slog.Logger) (*Retriever, error) {
	if opts.VectorWeight < 0 || opts.VectorWeight > 1 {
		return nil, fmt.Errorf("%w: vector weight %v outside [0, 1]", rag.ErrValidation, opts.VectorWeight)
	}
	if opts.OverfetchFactor < 1 {
		return nil, fmt.Errorf("%w: overfetch factor must be >= 1, got %d", rag.ErrValidation, opts.OverfetchFactor)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		texts:    texts,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("docrag/retriever"),
	}, nil
}

// Search retrieves the limit best chunks for query from one knowledge base.
// hybrid selects the merged vector+keyword ranking; otherwise the ranking is
// raw cosine similarity.
//
// A knowledge base that was never indexed produces an empty result, not an
// error.
func (r *Retriever) Search(ctx context.Context, kbID uuid.UUID, query string, limit int, hybrid bool) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("%w: query is empty", rag.ErrValidation)
	}
	if limit <= 0 {
		return Result{}, fmt.Errorf("%w: limit must be positive, got %d", rag.ErrValidation, limit)
	}

	ctx, span := r.tracer.Start(ctx, "retriever.Search",
		trace.WithAttributes(
			attribute.String("knowledge_base_id", kbID.String()),
			attribute.Int("limit", limit),
			attribute.Bool("hybrid", hybrid),
		))
	defer span.End()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	fetch := limit
	if hybrid {
		fetch = limit * r.opts.OverfetchFactor
	}

	vectorHits, err := r.vectors.Search(ctx, rag.CollectionName(kbID), vector, fetch)
	if errors.Is(err, rag.ErrNotFound) {
		// Never indexed means nothing to find.
		return Result{Chunks: []rag.RetrievedChunk{}}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("vector search: %w", err)
	}

	if !hybrid {
		if len(vectorHits) > limit {
			vectorHits = vectorHits[:limit]
		}
		return Result{Chunks: vectorHits}, nil
	}

	textHits, err := r.texts.SearchText(ctx, kbID, query, fetch)
	if err != nil {
		// Keyword failure degrades the query instead of failing it. The
		// dense results are still valid on their own.
		r.logger.Warn("text search failed, serving vector-only results",
			"knowledge_base_id", kbID, "error", err)
		if len(vectorHits) > limit {
			vectorHits = vectorHits[:limit]
		}
		return Result{
			Chunks:   vectorHits,
			Degraded: true,
			Advisory: "keyword search unavailable, results are vector-only",
		}, nil
	}

	merged := mergeHybrid(vectorHits, textHits, r.opts.VectorWeight)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return Result{Chunks: merged}, nil
}
