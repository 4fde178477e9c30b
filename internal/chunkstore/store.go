// Package chunkstore persists knowledge bases, assets and chunks in
// PostgreSQL and serves the keyword half of hybrid retrieval through
// native full-text search.
//
// Chunks are write-once: the indexing pipeline inserts them in bulk and
// re-indexing replaces them. Deletes cascade from their owners, so removing
// an asset or a knowledge base removes its chunks in the same statement.
//
// Store is safe for concurrent use by multiple goroutines; all state lives
// in the injected connection pool.
package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docrag/docrag/internal/rag"
)

// Store manages the document-store side of the retrieval pipeline.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on the shared connection pool.
// A nil logger falls back to slog.Default.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// InsertChunks bulk-inserts chunks for one asset using COPY.
// Chunks must belong to a single asset with unique, contiguous 1-based
// ordinals; violations are caller bugs and fail with ErrValidation before
// any row is written. Returns the number of rows inserted.
func (s *Store) InsertChunks(ctx context.Context, chunks []rag.Chunk) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateChunkSequence(chunks); err != nil {
		return 0, err
	}

	rows := make([][]any, len(chunks))
	for i, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshaling metadata for chunk %s: %w", c.ID, err)
		}
		rows[i] = []any{c.ID, c.AssetID, c.KnowledgeBaseID, c.Ordinal, c.Text, metadata}
	}

	inserted, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"chunks"},
		[]string{"id", "asset_id", "knowledge_base_id", "ordinal", "content", "metadata"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting chunks: %w", rag.ErrStoreUnavailable, err)
	}

	s.logger.Debug("inserted chunks", "asset_id", chunks[0].AssetID, "count", inserted)
	return inserted, nil
}

// ListChunksByAsset returns an asset's chunks ordered by ordinal.
func (s *Store) ListChunksByAsset(ctx context.Context, assetID uuid.UUID) ([]rag.Chunk, error) {
	const query = `
		SELECT id, asset_id, knowledge_base_id, ordinal, content, metadata, created_at
		FROM chunks
		WHERE asset_id = $1
		ORDER BY ordinal`

	rows, err := s.pool.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing chunks: %w", rag.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var c rag.Chunk
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.AssetID, &c.KnowledgeBaseID, &c.Ordinal, &c.Text, &metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = map[string]string{}
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing chunks: %w", rag.ErrStoreUnavailable, err)
	}
	return chunks, nil
}

// DeleteChunksByAsset removes all chunks owned by one asset.
// Returns the number of chunks removed.
func (s *Store) DeleteChunksByAsset(ctx context.Context, assetID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE asset_id = $1`, assetID)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting chunks by asset: %w", rag.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteChunksByKnowledgeBase removes all chunks owned by one knowledge base.
func (s *Store) DeleteChunksByKnowledgeBase(ctx context.Context, kbID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE knowledge_base_id = $1`, kbID)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting chunks by knowledge base: %w", rag.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// CountChunks returns the number of chunks in one knowledge base.
// After a successful indexing run this must equal the vector index's record
// count for the same knowledge base.
func (s *Store) CountChunks(ctx context.Context, kbID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE knowledge_base_id = $1`, kbID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %w", rag.ErrStoreUnavailable, err)
	}
	return count, nil
}

// SearchText performs full-text keyword search over one knowledge base's
// chunks, ranked by ts_rank descending. The query goes through
// websearch_to_tsquery, so free-form user input is safe and quoted phrases
// work. A query matching nothing returns an empty slice, not an error.
func (s *Store) SearchText(ctx context.Context, kbID uuid.UUID, query string, limit int) ([]rag.RetrievedChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", rag.ErrValidation, limit)
	}

	const searchQuery = `
		SELECT c.id, c.asset_id, c.content, ts_rank(c.content_search, q.query) AS score
		FROM chunks c, websearch_to_tsquery('english', $2) AS q(query)
		WHERE c.knowledge_base_id = $1 AND c.content_search @@ q.query
		ORDER BY score DESC, c.id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, searchQuery, kbID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: text search: %w", rag.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []rag.RetrievedChunk
	for rows.Next() {
		var h rag.RetrievedChunk
		var score float32 // ts_rank returns real
		if err := rows.Scan(&h.ChunkID, &h.AssetID, &h.Text, &score); err != nil {
			return nil, fmt.Errorf("scanning text search hit: %w", err)
		}
		h.Score = float64(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: text search: %w", rag.ErrStoreUnavailable, err)
	}

	s.logger.Debug("text search completed", "knowledge_base_id", kbID, "hits", len(hits))
	return hits, nil
}

// validateChunkSequence checks the single-asset, contiguous-ordinal
// invariant before a bulk insert.
func validateChunkSequence(chunks []rag.Chunk) error {
	assetID := chunks[0].AssetID
	seen := make(map[int32]bool, len(chunks))
	for _, c := range chunks {
		if c.AssetID != assetID {
			return fmt.Errorf("%w: chunks span multiple assets (%s and %s)", rag.ErrValidation, assetID, c.AssetID)
		}
		if c.Ordinal < 1 || int(c.Ordinal) > len(chunks) {
			return fmt.Errorf("%w: chunk ordinal %d outside [1,%d]", rag.ErrValidation, c.Ordinal, len(chunks))
		}
		if seen[c.Ordinal] {
			return fmt.Errorf("%w: duplicate chunk ordinal %d", rag.ErrValidation, c.Ordinal)
		}
		seen[c.Ordinal] = true
	}
	return nil
}
