// Package pgvector implements the vector index on PostgreSQL with the
// pgvector extension.
//
// Each collection gets its own table named from the sanitized collection
// name, created on demand with an HNSW cosine index. The vector_collections
// table is the registry of live collections and their dimensions; table
// creation and registry insert happen in one transaction so the two can
// never disagree.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/docrag/docrag/internal/rag"
)

// PostgreSQL error codes handled explicitly.
const (
	undefinedTable  = "42P01"
	uniqueViolation = "23505"
)

// Index is the pgvector-backed vector store.
type Index struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates an Index on the shared connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{pool: pool, logger: logger}
}

// tableName maps a collection name to a safe SQL identifier. Collection
// names contain UUIDs, so dashes become underscores; anything outside
// [a-z0-9_] is rejected by replacement rather than quoting so the name
// also works unquoted in index names.
func tableName(collection string) string {
	var b strings.Builder
	b.WriteString("vec_")
	for _, r := range strings.ToLower(collection) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// CreateCollection registers the collection and creates its table and HNSW
// index. Re-creating with the same dimension is a no-op; a dimension
// mismatch fails with ErrValidation since the stored vectors would be
// incompatible.
func (x *Index) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", rag.ErrValidation, dimension)
	}

	existing, err := x.dimensionOf(ctx, name)
	if err != nil && !errors.Is(err, rag.ErrNotFound) {
		return err
	}
	if err == nil {
		if existing != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				rag.ErrValidation, name, existing, dimension)
		}
		return nil
	}

	tbl := tableName(name)
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                UUID PRIMARY KEY,
			embedding         VECTOR(%d) NOT NULL,
			content           TEXT NOT NULL,
			asset_id          UUID NOT NULL,
			knowledge_base_id UUID NOT NULL,
			ordinal           INTEGER NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, tbl, dimension)
	createIndex := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
		tbl, tbl)

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", rag.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: creating collection table: %w", rag.ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("%w: creating vector index: %w", rag.ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO vector_collections (name, dimension) VALUES ($1, $2)`, name, dimension); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Lost a create race; the winner's dimension must match.
			return nil
		}
		return fmt.Errorf("%w: registering collection: %w", rag.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing collection create: %w", rag.ErrStoreUnavailable, err)
	}

	x.logger.Info("created vector collection", "collection", name, "dimension", dimension)
	return nil
}

// DeleteCollection drops the collection table and removes its registry row.
// Missing collections are a no-op so reset paths stay idempotent.
func (x *Index) DeleteCollection(ctx context.Context, name string) error {
	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", rag.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(name))); err != nil {
		return fmt.Errorf("%w: dropping collection table: %w", rag.ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM vector_collections WHERE name = $1`, name); err != nil {
		return fmt.Errorf("%w: unregistering collection: %w", rag.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing collection delete: %w", rag.ErrStoreUnavailable, err)
	}

	x.logger.Info("deleted vector collection", "collection", name)
	return nil
}

// CollectionExists consults the registry.
func (x *Index) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := x.dimensionOf(ctx, name)
	if errors.Is(err, rag.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert writes records in one batch, replacing rows with matching IDs.
func (x *Index) Upsert(ctx context.Context, collection string, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, content, asset_id, knowledge_base_id, ordinal)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content = EXCLUDED.content,
			asset_id = EXCLUDED.asset_id,
			knowledge_base_id = EXCLUDED.knowledge_base_id,
			ordinal = EXCLUDED.ordinal`, tableName(collection))

	batch := &pgx.Batch{}
	for _, rec := range records {
		embedding := pgv.NewVector(rec.Vector)
		batch.Queue(query, rec.ID, embedding, rec.Payload.Text,
			rec.Payload.AssetID, rec.Payload.KnowledgeBaseID, rec.Payload.Ordinal)
	}

	results := x.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range records {
		if _, err := results.Exec(); err != nil {
			return x.mapTableError(collection, fmt.Errorf("upserting vectors: %w", err))
		}
	}

	x.logger.Debug("upserted vectors", "collection", collection, "count", len(records))
	return nil
}

// ExistingIDs returns the subset of ids already stored in the collection.
func (x *Index) ExistingIDs(ctx context.Context, collection string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}

	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, tableName(collection))
	rows, err := x.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, x.mapTableError(collection, fmt.Errorf("checking existing ids: %w", err))
	}
	defer rows.Close()

	existing := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, x.mapTableError(collection, fmt.Errorf("checking existing ids: %w", err))
	}
	return existing, nil
}

// DeleteByAsset removes every record stored for the asset. A missing
// collection table is a no-op so asset deletion never fails on a knowledge
// base that was never indexed.
func (x *Index) DeleteByAsset(ctx context.Context, collection string, assetID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE asset_id = $1`, tableName(collection))
	tag, err := x.pool.Exec(ctx, query, assetID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: deleting asset vectors: %w", rag.ErrStoreUnavailable, err)
	}

	x.logger.Debug("deleted asset vectors",
		"collection", collection, "asset_id", assetID, "removed", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// DeleteStaleByAsset removes the asset's records not listed in keep. A
// missing collection table is a no-op, same as DeleteByAsset.
func (x *Index) DeleteStaleByAsset(ctx context.Context, collection string, assetID uuid.UUID, keep []uuid.UUID) (int64, error) {
	if keep == nil {
		keep = []uuid.UUID{}
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE asset_id = $1 AND NOT (id = ANY($2))`, tableName(collection))
	tag, err := x.pool.Exec(ctx, query, assetID, keep)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: deleting stale asset vectors: %w", rag.ErrStoreUnavailable, err)
	}

	if tag.RowsAffected() > 0 {
		x.logger.Debug("deleted stale asset vectors",
			"collection", collection, "asset_id", assetID, "removed", tag.RowsAffected())
	}
	return tag.RowsAffected(), nil
}

// Search runs cosine nearest-neighbor search. Scores are cosine similarity,
// so 1 means identical direction.
func (x *Index) Search(ctx context.Context, collection string, vector []float32, limit int) ([]rag.RetrievedChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", rag.ErrValidation, limit)
	}

	query := fmt.Sprintf(`
		SELECT id, asset_id, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, tableName(collection))

	embedding := pgv.NewVector(vector)
	rows, err := x.pool.Query(ctx, query, embedding, limit)
	if err != nil {
		return nil, x.mapTableError(collection, fmt.Errorf("vector search: %w", err))
	}
	defer rows.Close()

	var hits []rag.RetrievedChunk
	for rows.Next() {
		var h rag.RetrievedChunk
		if err := rows.Scan(&h.ChunkID, &h.AssetID, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, x.mapTableError(collection, fmt.Errorf("vector search: %w", err))
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (x *Index) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, tableName(collection))
	if err := x.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, x.mapTableError(collection, fmt.Errorf("counting vectors: %w", err))
	}
	return count, nil
}

// dimensionOf reads the registry; rag.ErrNotFound when absent.
func (x *Index) dimensionOf(ctx context.Context, name string) (int, error) {
	var dimension int
	err := x.pool.QueryRow(ctx,
		`SELECT dimension FROM vector_collections WHERE name = $1`, name).Scan(&dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: collection %q", rag.ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading collection registry: %w", rag.ErrStoreUnavailable, err)
	}
	return dimension, nil
}

// mapTableError turns "relation does not exist" into ErrNotFound so callers
// can treat a never-indexed knowledge base as empty.
func (x *Index) mapTableError(collection string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: collection %q: %w", rag.ErrNotFound, collection, err)
	}
	return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
}
