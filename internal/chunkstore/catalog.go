package chunkstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docrag/docrag/internal/rag"
)

// PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// CreateKnowledgeBase registers a knowledge base. Names are unique; creating
// a second knowledge base with the same name fails with ErrValidation.
func (s *Store) CreateKnowledgeBase(ctx context.Context, name, dirPath string) (rag.KnowledgeBase, error) {
	if name == "" {
		return rag.KnowledgeBase{}, fmt.Errorf("%w: knowledge base name is empty", rag.ErrValidation)
	}

	kb := rag.KnowledgeBase{ID: uuid.New(), Name: name, DirPath: dirPath}
	const query = `
		INSERT INTO knowledge_bases (id, name, dir_path)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, query, kb.ID, kb.Name, kb.DirPath).Scan(&kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return rag.KnowledgeBase{}, fmt.Errorf("%w: knowledge base %q already exists", rag.ErrValidation, name)
		}
		return rag.KnowledgeBase{}, fmt.Errorf("%w: creating knowledge base: %w", rag.ErrStoreUnavailable, err)
	}

	s.logger.Info("created knowledge base", "knowledge_base_id", kb.ID, "name", name)
	return kb, nil
}

// GetKnowledgeBase looks up a knowledge base by ID.
func (s *Store) GetKnowledgeBase(ctx context.Context, id uuid.UUID) (rag.KnowledgeBase, error) {
	const query = `
		SELECT id, name, dir_path, created_at, updated_at
		FROM knowledge_bases
		WHERE id = $1`

	var kb rag.KnowledgeBase
	err := s.pool.QueryRow(ctx, query, id).Scan(&kb.ID, &kb.Name, &kb.DirPath, &kb.CreatedAt, &kb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rag.KnowledgeBase{}, fmt.Errorf("%w: knowledge base %s", rag.ErrNotFound, id)
	}
	if err != nil {
		return rag.KnowledgeBase{}, fmt.Errorf("%w: getting knowledge base: %w", rag.ErrStoreUnavailable, err)
	}
	return kb, nil
}

// GetKnowledgeBaseByName looks up a knowledge base by its unique name.
func (s *Store) GetKnowledgeBaseByName(ctx context.Context, name string) (rag.KnowledgeBase, error) {
	const query = `
		SELECT id, name, dir_path, created_at, updated_at
		FROM knowledge_bases
		WHERE name = $1`

	var kb rag.KnowledgeBase
	err := s.pool.QueryRow(ctx, query, name).Scan(&kb.ID, &kb.Name, &kb.DirPath, &kb.CreatedAt, &kb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rag.KnowledgeBase{}, fmt.Errorf("%w: knowledge base %q", rag.ErrNotFound, name)
	}
	if err != nil {
		return rag.KnowledgeBase{}, fmt.Errorf("%w: getting knowledge base: %w", rag.ErrStoreUnavailable, err)
	}
	return kb, nil
}

// ListKnowledgeBases returns all knowledge bases ordered by creation time.
func (s *Store) ListKnowledgeBases(ctx context.Context) ([]rag.KnowledgeBase, error) {
	const query = `
		SELECT id, name, dir_path, created_at, updated_at
		FROM knowledge_bases
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: listing knowledge bases: %w", rag.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var kbs []rag.KnowledgeBase
	for rows.Next() {
		var kb rag.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.DirPath, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning knowledge base: %w", err)
		}
		kbs = append(kbs, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing knowledge bases: %w", rag.ErrStoreUnavailable, err)
	}
	return kbs, nil
}

// DeleteKnowledgeBase removes a knowledge base. Its assets and chunks go
// with it through ON DELETE CASCADE; the caller is responsible for dropping
// the matching vector collection.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting knowledge base: %w", rag.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: knowledge base %s", rag.ErrNotFound, id)
	}

	s.logger.Info("deleted knowledge base", "knowledge_base_id", id)
	return nil
}

// CreateAsset records an uploaded file under a knowledge base. Asset names
// are unique within their knowledge base.
func (s *Store) CreateAsset(ctx context.Context, asset rag.Asset) (rag.Asset, error) {
	if asset.Name == "" {
		return rag.Asset{}, fmt.Errorf("%w: asset name is empty", rag.ErrValidation)
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}

	const query = `
		INSERT INTO assets (id, knowledge_base_id, name, type, size, path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		asset.ID, asset.KnowledgeBaseID, asset.Name, asset.Type, asset.Size, asset.Path,
	).Scan(&asset.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return rag.Asset{}, fmt.Errorf("%w: asset %q already exists in knowledge base %s",
				rag.ErrValidation, asset.Name, asset.KnowledgeBaseID)
		}
		return rag.Asset{}, fmt.Errorf("%w: creating asset: %w", rag.ErrStoreUnavailable, err)
	}

	s.logger.Info("created asset",
		"asset_id", asset.ID, "knowledge_base_id", asset.KnowledgeBaseID, "name", asset.Name)
	return asset, nil
}

// GetAsset looks up an asset by ID.
func (s *Store) GetAsset(ctx context.Context, id uuid.UUID) (rag.Asset, error) {
	const query = `
		SELECT id, knowledge_base_id, name, type, size, path, created_at
		FROM assets
		WHERE id = $1`

	var a rag.Asset
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.KnowledgeBaseID, &a.Name, &a.Type, &a.Size, &a.Path, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rag.Asset{}, fmt.Errorf("%w: asset %s", rag.ErrNotFound, id)
	}
	if err != nil {
		return rag.Asset{}, fmt.Errorf("%w: getting asset: %w", rag.ErrStoreUnavailable, err)
	}
	return a, nil
}

// ListAssets returns a knowledge base's assets ordered by creation time.
func (s *Store) ListAssets(ctx context.Context, kbID uuid.UUID) ([]rag.Asset, error) {
	const query = `
		SELECT id, knowledge_base_id, name, type, size, path, created_at
		FROM assets
		WHERE knowledge_base_id = $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, kbID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing assets: %w", rag.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var assets []rag.Asset
	for rows.Next() {
		var a rag.Asset
		if err := rows.Scan(&a.ID, &a.KnowledgeBaseID, &a.Name, &a.Type, &a.Size, &a.Path, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing assets: %w", rag.ErrStoreUnavailable, err)
	}
	return assets, nil
}

// DeleteAsset removes an asset and, through cascade, its chunks.
func (s *Store) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting asset: %w", rag.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset %s", rag.ErrNotFound, id)
	}
	return nil
}
