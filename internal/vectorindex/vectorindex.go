// Package vectorindex defines the vector store capability used by the
// indexing and retrieval pipelines.
//
// A collection holds the embedded chunks of exactly one knowledge base and
// carries a fixed embedding dimension from creation. Two backends implement
// the interface: pgvector (PostgreSQL, production) and memory (process-local,
// tests and small deployments).
package vectorindex

import (
	"context"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
)

// Index is the write and query surface of a vector store.
//
// Implementations must be safe for concurrent use. Operations on a
// collection that does not exist fail with rag.ErrNotFound; Search callers
// that treat an unindexed knowledge base as empty handle that translation
// themselves.
type Index interface {
	// CreateCollection creates a collection with the given embedding
	// dimension. Creating an existing collection with the same dimension is
	// a no-op; with a different dimension it fails with rag.ErrValidation.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// DeleteCollection removes a collection and all its records. Deleting a
	// missing collection is a no-op.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Upsert inserts records, replacing any existing record with the same ID.
	Upsert(ctx context.Context, collection string, records []rag.VectorRecord) error

	// ExistingIDs returns which of the given IDs are already present.
	// The indexing pipeline uses this to skip re-embedding unchanged chunks.
	ExistingIDs(ctx context.Context, collection string, ids []uuid.UUID) (map[uuid.UUID]bool, error)

	// DeleteByAsset removes every record belonging to the asset and returns
	// how many were removed. Deleting from a missing collection is a no-op.
	DeleteByAsset(ctx context.Context, collection string, assetID uuid.UUID) (int64, error)

	// DeleteStaleByAsset removes the asset's records whose IDs are not in
	// keep, returning how many were removed. Records in keep stay in place
	// so unchanged chunks never need re-embedding. A missing collection is
	// a no-op.
	DeleteStaleByAsset(ctx context.Context, collection string, assetID uuid.UUID, keep []uuid.UUID) (int64, error)

	// Search returns the limit nearest records to vector by cosine
	// similarity, highest first. Scores are in [0, 1] for normalized
	// embeddings.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]rag.RetrievedChunk, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int64, error)
}
