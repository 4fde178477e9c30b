// Package indexer runs the embedding pipeline: it takes an asset's chunks,
// embeds them in ordered batches and writes the vectors into the knowledge
// base's collection.
//
// Runs for the same knowledge base are serialized with a per-knowledge-base
// lock so a reset can never interleave with another run's upserts. Different
// knowledge bases index concurrently.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/vectorindex"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options controls one indexing run.
type Options struct {
	// DoReset drops and recreates the collection before indexing, discarding
	// every previously stored vector for the knowledge base.
	DoReset bool

	// SkipDuplicates skips chunks whose IDs are already in the collection,
	// saving their embedding calls. Chunk IDs are content-derived, so an
	// unchanged chunk keeps its ID across runs.
	SkipDuplicates bool
}

// Indexer embeds chunks and writes them to the vector index.
type Indexer struct {
	index     vectorindex.Index
	embedder  Embedder
	dimension int
	batchSize int
	logger    *slog.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New creates an Indexer. dimension is the embedding dimension used when
// creating collections; batchSize caps texts per embedding request.
func New(index vectorindex.Index, embedder Embedder, dimension, batchSize int, logger *slog.Logger) (*Indexer, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", rag.ErrValidation, dimension)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", rag.ErrValidation, batchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		index:     index,
		embedder:  embedder,
		dimension: dimension,
		batchSize: batchSize,
		logger:    logger,
		tracer:    otel.Tracer("docrag/indexer"),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// IndexChunks runs one indexing pass for an asset's chunks and returns the
// number of vectors written.
//
// The collection is created on first use. Batches are processed in chunk
// order; a failed batch aborts the run with an error naming the failed
// range, leaving earlier batches in place. The run is idempotent when
// SkipDuplicates is set: a second pass over the same chunks writes nothing.
func (ix *Indexer) IndexChunks(ctx context.Context, kb rag.KnowledgeBase, chunks []rag.Chunk, opts Options) (int, error) {
	lock := ix.lockFor(kb.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := ix.tracer.Start(ctx, "indexer.IndexChunks",
		trace.WithAttributes(
			attribute.String("knowledge_base_id", kb.ID.String()),
			attribute.Int("chunks", len(chunks)),
			attribute.Bool("do_reset", opts.DoReset),
		))
	defer span.End()

	collection := rag.CollectionName(kb.ID)
	if err := ix.prepareCollection(ctx, collection, opts.DoReset); err != nil {
		return 0, err
	}

	pending := chunks
	if opts.SkipDuplicates && !opts.DoReset {
		var err error
		pending, err = ix.filterExisting(ctx, collection, chunks)
		if err != nil {
			return 0, err
		}
	}
	if len(pending) == 0 {
		ix.logger.Info("nothing to index", "knowledge_base_id", kb.ID, "skipped", len(chunks))
		return 0, nil
	}

	inserted := 0
	for start := 0; start < len(pending); start += ix.batchSize {
		end := min(start+ix.batchSize, len(pending))
		batch := pending[start:end]

		if err := ix.indexBatch(ctx, collection, batch); err != nil {
			return inserted, fmt.Errorf("indexing batch %d-%d of %d: %w", start, end-1, len(pending), err)
		}
		inserted += len(batch)
	}

	ix.logger.Info("indexed chunks",
		"knowledge_base_id", kb.ID,
		"collection", collection,
		"inserted", inserted,
		"skipped", len(chunks)-inserted)
	return inserted, nil
}

// Reset drops and recreates the knowledge base's collection without
// indexing anything, leaving it registered but empty.
func (ix *Indexer) Reset(ctx context.Context, kbID uuid.UUID) error {
	lock := ix.lockFor(kbID)
	lock.Lock()
	defer lock.Unlock()

	return ix.prepareCollection(ctx, rag.CollectionName(kbID), true)
}

// DeleteAssetVectors removes one asset's vectors from the knowledge base's
// collection, returning how many were removed. A never-indexed knowledge
// base is a no-op.
func (ix *Indexer) DeleteAssetVectors(ctx context.Context, kbID, assetID uuid.UUID) (int64, error) {
	lock := ix.lockFor(kbID)
	lock.Lock()
	defer lock.Unlock()

	removed, err := ix.index.DeleteByAsset(ctx, rag.CollectionName(kbID), assetID)
	if err != nil {
		return 0, fmt.Errorf("deleting asset vectors: %w", err)
	}
	if removed > 0 {
		ix.logger.Info("deleted asset vectors",
			"knowledge_base_id", kbID, "asset_id", assetID, "removed", removed)
	}
	return removed, nil
}

// PruneAssetVectors removes the asset's vectors whose IDs are not in keep.
// Re-splitting an asset calls this with the new chunk IDs so vectors from
// the previous split never outlive their chunk rows, while unchanged chunks
// keep their vectors and their skipped embedding calls. A never-indexed
// knowledge base is a no-op.
func (ix *Indexer) PruneAssetVectors(ctx context.Context, kbID, assetID uuid.UUID, keep []uuid.UUID) (int64, error) {
	lock := ix.lockFor(kbID)
	lock.Lock()
	defer lock.Unlock()

	removed, err := ix.index.DeleteStaleByAsset(ctx, rag.CollectionName(kbID), assetID, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning asset vectors: %w", err)
	}
	if removed > 0 {
		ix.logger.Info("pruned stale asset vectors",
			"knowledge_base_id", kbID, "asset_id", assetID, "removed", removed)
	}
	return removed, nil
}

// DropCollection removes the knowledge base's collection entirely. Used
// when the knowledge base itself is deleted.
func (ix *Indexer) DropCollection(ctx context.Context, kbID uuid.UUID) error {
	lock := ix.lockFor(kbID)
	lock.Lock()
	defer lock.Unlock()

	return ix.index.DeleteCollection(ctx, rag.CollectionName(kbID))
}

func (ix *Indexer) prepareCollection(ctx context.Context, collection string, doReset bool) error {
	if doReset {
		if err := ix.index.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("resetting collection: %w", err)
		}
		ix.logger.Info("reset collection", "collection", collection)
	}
	if err := ix.index.CreateCollection(ctx, collection, ix.dimension); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

func (ix *Indexer) filterExisting(ctx context.Context, collection string, chunks []rag.Chunk) ([]rag.Chunk, error) {
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	existing, err := ix.index.ExistingIDs(ctx, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("checking for indexed chunks: %w", err)
	}

	pending := make([]rag.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !existing[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, collection string, batch []rag.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", rag.ErrEmbedding, len(vectors), len(batch))
	}

	records := make([]rag.VectorRecord, len(batch))
	for i, c := range batch {
		records[i] = rag.VectorRecord{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: rag.VectorPayload{
				Text:            c.Text,
				AssetID:         c.AssetID,
				KnowledgeBaseID: c.KnowledgeBaseID,
				Ordinal:         c.Ordinal,
			},
		}
	}
	return ix.index.Upsert(ctx, collection, records)
}

// lockFor returns the mutex serializing runs for one knowledge base.
func (ix *Indexer) lockFor(kbID uuid.UUID) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	lock, ok := ix.locks[kbID]
	if !ok {
		lock = &sync.Mutex{}
		ix.locks[kbID] = lock
	}
	return lock
}
