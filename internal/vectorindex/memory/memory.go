// Package memory implements the vector index in process memory.
//
// It exists for tests and for single-node setups where PostgreSQL is not
// available; the semantics mirror the pgvector backend, including the
// error taxonomy, so the two are interchangeable behind the interface.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
)

// Index is an in-memory vector store guarded by a single RWMutex.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	records   map[uuid.UUID]rag.VectorRecord
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// CreateCollection creates a collection. Same-dimension re-creation is a
// no-op; a dimension mismatch fails with ErrValidation.
func (x *Index) CreateCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", rag.ErrValidation, dimension)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.collections[name]; ok {
		if existing.dimension != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				rag.ErrValidation, name, existing.dimension, dimension)
		}
		return nil
	}
	x.collections[name] = &collection{
		dimension: dimension,
		records:   make(map[uuid.UUID]rag.VectorRecord),
	}
	return nil
}

// DeleteCollection removes a collection; missing collections are a no-op.
func (x *Index) DeleteCollection(_ context.Context, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.collections, name)
	return nil
}

// CollectionExists reports whether the collection exists.
func (x *Index) CollectionExists(_ context.Context, name string) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.collections[name]
	return ok, nil
}

// Upsert stores records, replacing any with matching IDs. Vectors must
// match the collection dimension.
func (x *Index) Upsert(_ context.Context, name string, records []rag.VectorRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.collections[name]
	if !ok {
		return fmt.Errorf("%w: collection %q", rag.ErrNotFound, name)
	}
	for _, rec := range records {
		if len(rec.Vector) != c.dimension {
			return fmt.Errorf("%w: vector for %s has dimension %d, collection %q wants %d",
				rag.ErrValidation, rec.ID, len(rec.Vector), name, c.dimension)
		}
	}
	for _, rec := range records {
		c.records[rec.ID] = rec
	}
	return nil
}

// ExistingIDs returns the subset of ids already stored.
func (x *Index) ExistingIDs(_ context.Context, name string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", rag.ErrNotFound, name)
	}
	existing := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.records[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

// DeleteByAsset removes every record stored for the asset.
func (x *Index) DeleteByAsset(_ context.Context, name string, assetID uuid.UUID) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.collections[name]
	if !ok {
		return 0, nil
	}
	var removed int64
	for id, rec := range c.records {
		if rec.Payload.AssetID == assetID {
			delete(c.records, id)
			removed++
		}
	}
	return removed, nil
}

// DeleteStaleByAsset removes the asset's records not listed in keep.
func (x *Index) DeleteStaleByAsset(_ context.Context, name string, assetID uuid.UUID, keep []uuid.UUID) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.collections[name]
	if !ok {
		return 0, nil
	}
	keepSet := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	var removed int64
	for id, rec := range c.records {
		if rec.Payload.AssetID == assetID && !keepSet[id] {
			delete(c.records, id)
			removed++
		}
	}
	return removed, nil
}

// Search scans the collection and returns the limit most cosine-similar
// records, highest score first with ties broken by ID for determinism.
func (x *Index) Search(_ context.Context, name string, vector []float32, limit int) ([]rag.RetrievedChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", rag.ErrValidation, limit)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", rag.ErrNotFound, name)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection %q wants %d",
			rag.ErrValidation, len(vector), name, c.dimension)
	}

	hits := make([]rag.RetrievedChunk, 0, len(c.records))
	for _, rec := range c.records {
		hits = append(hits, rag.RetrievedChunk{
			ChunkID: rec.ID,
			AssetID: rec.Payload.AssetID,
			Text:    rec.Payload.Text,
			Score:   cosineSimilarity(vector, rec.Vector),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID.String() < hits[j].ChunkID.String()
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of stored records.
func (x *Index) Count(_ context.Context, name string) (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, ok := x.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: collection %q", rag.ErrNotFound, name)
	}
	return int64(len(c.records)), nil
}

// cosineSimilarity returns 0 for zero-magnitude vectors instead of NaN.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
