// Package ingest moves documents into a knowledge base: it stores uploaded
// files, registers them as assets, splits their text into chunks and hands
// the chunks to the document store and the embedding pipeline.
//
// Directory ingestion walks a tree, honors the directory's .gitignore and
// ingests every supported file, skipping the rest.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/docrag/docrag/internal/indexer"
	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/security"
	"github.com/docrag/docrag/internal/splitter"
)

// Catalog is the document-store surface ingestion needs.
type Catalog interface {
	CreateAsset(ctx context.Context, asset rag.Asset) (rag.Asset, error)
	DeleteChunksByAsset(ctx context.Context, assetID uuid.UUID) (int64, error)
	InsertChunks(ctx context.Context, chunks []rag.Chunk) (int64, error)
}

// ChunkIndexer embeds chunks into the knowledge base's collection.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, kb rag.KnowledgeBase, chunks []rag.Chunk, opts indexer.Options) (int, error)
	PruneAssetVectors(ctx context.Context, kbID, assetID uuid.UUID, keep []uuid.UUID) (int64, error)
}

// Result summarizes a directory ingestion run.
type Result struct {
	FilesAdded    int
	FilesSkipped  int
	FilesFailed   int
	ChunksIndexed int
	TotalSize     int64
	Duration      time.Duration
}

// maxUploadSize caps a single document at 16MB; larger files are almost
// certainly not text and would stall the splitter.
const maxUploadSize = 16 << 20

// Service runs the ingestion pipeline.
type Service struct {
	catalog    Catalog
	indexer    ChunkIndexer
	splitter   *splitter.Splitter
	extractors []splitter.Extractor
	dataDir    string
	guard      *security.Guard
	logger     *slog.Logger
}

// New creates an ingestion Service. dataDir is the root under which each
// knowledge base gets its own upload directory; processing refuses to read
// files outside it.
func New(catalog Catalog, chunkIndexer ChunkIndexer, split *splitter.Splitter, dataDir string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	guard, err := security.NewGuard(dataDir)
	if err != nil {
		return nil, fmt.Errorf("guarding data directory: %w", err)
	}
	return &Service{
		catalog:    catalog,
		indexer:    chunkIndexer,
		splitter:   split,
		extractors: []splitter.Extractor{splitter.PlainTextExtractor{}},
		dataDir:    dataDir,
		guard:      guard,
		logger:     logger,
	}, nil
}

// supported reports whether ingestion handles the file type.
func (s *Service) supported(fileType string) bool {
	fileType = strings.ToLower(fileType)
	for _, e := range s.extractors {
		if e.Supports(fileType) {
			return true
		}
	}
	return false
}

// SaveUpload stores an uploaded document under the knowledge base's
// directory and registers it as an asset. The stored filename gets a random
// prefix so two uploads with the same name never collide on disk, while the
// asset keeps the caller's name.
func (s *Service) SaveUpload(ctx context.Context, kb rag.KnowledgeBase, name string, r io.Reader) (rag.Asset, error) {
	name = filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(name))
	if !s.supported(ext) {
		return rag.Asset{}, fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, ext)
	}

	dir := filepath.Join(s.dataDir, kb.ID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return rag.Asset{}, fmt.Errorf("creating upload directory: %w", err)
	}

	storedName := uuid.NewString() + "_" + name
	path := filepath.Join(dir, storedName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return rag.Asset{}, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(r, maxUploadSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size > maxUploadSize {
		err = fmt.Errorf("%w: upload exceeds %d bytes", rag.ErrValidation, maxUploadSize)
	}
	if err != nil {
		_ = os.Remove(path)
		return rag.Asset{}, fmt.Errorf("writing upload: %w", err)
	}

	asset, err := s.catalog.CreateAsset(ctx, rag.Asset{
		KnowledgeBaseID: kb.ID,
		Name:            name,
		Type:            ext,
		Size:            size,
		Path:            path,
	})
	if err != nil {
		_ = os.Remove(path)
		return rag.Asset{}, err
	}

	s.logger.Info("saved upload",
		"knowledge_base_id", kb.ID, "asset_id", asset.ID, "name", name, "size", size)
	return asset, nil
}

// ProcessAsset extracts the asset's text, splits it into chunks, replaces
// the asset's stored chunks and embeds them. Returns the number of chunks
// produced and the number of vectors written.
//
// Re-processing an unchanged asset with skipDuplicates leaves the vector
// index untouched because chunk IDs derive from content. When the content
// changed, vectors from the previous split are pruned so the index holds
// exactly the asset's current chunks.
func (s *Service) ProcessAsset(ctx context.Context, kb rag.KnowledgeBase, asset rag.Asset, opts indexer.Options) (int, int, error) {
	// The stored path is data, not something to trust blindly.
	path, err := s.guard.Resolve(asset.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: asset %s: %s", rag.ErrValidation, asset.Name, err)
	}

	text, err := splitter.ExtractText(ctx, s.extractors, path, asset.Type)
	if err != nil {
		return 0, 0, fmt.Errorf("extracting %s: %w", asset.Name, err)
	}

	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		s.logger.Info("asset has no indexable text", "asset_id", asset.ID, "name", asset.Name)
		return 0, 0, nil
	}

	chunks := make([]rag.Chunk, len(pieces))
	for i, piece := range pieces {
		ordinal := int32(i + 1)
		chunks[i] = rag.Chunk{
			ID:              rag.NewChunkID(asset.ID, ordinal, piece),
			AssetID:         asset.ID,
			KnowledgeBaseID: kb.ID,
			Ordinal:         ordinal,
			Text:            piece,
			Metadata: map[string]string{
				"source": asset.Name,
				"type":   asset.Type,
			},
		}
	}

	// Replace, not append: a re-split always owns the asset's chunk rows.
	if _, err := s.catalog.DeleteChunksByAsset(ctx, asset.ID); err != nil {
		return 0, 0, fmt.Errorf("clearing previous chunks: %w", err)
	}
	if _, err := s.catalog.InsertChunks(ctx, chunks); err != nil {
		return 0, 0, fmt.Errorf("storing chunks: %w", err)
	}

	// Vectors from a previous split of this asset must not outlive their
	// chunk rows. Pruning by the new ID set keeps unchanged chunks in place.
	keep := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		keep[i] = c.ID
	}
	if _, err := s.indexer.PruneAssetVectors(ctx, kb.ID, asset.ID, keep); err != nil {
		return 0, 0, fmt.Errorf("pruning stale vectors for %s: %w", asset.Name, err)
	}

	indexed, err := s.indexer.IndexChunks(ctx, kb, chunks, opts)
	if err != nil {
		return len(chunks), indexed, fmt.Errorf("embedding chunks for %s: %w", asset.Name, err)
	}

	s.logger.Info("processed asset",
		"asset_id", asset.ID, "chunks", len(chunks), "indexed", indexed)
	return len(chunks), indexed, nil
}

// IngestDirectory walks dirPath and ingests every supported file into the
// knowledge base. A .gitignore at the directory root is honored for both
// files and subtrees. Individual file failures are counted, not fatal.
func (s *Service) IngestDirectory(ctx context.Context, kb rag.KnowledgeBase, dirPath string, opts indexer.Options) (*Result, error) {
	start := time.Now()
	result := &Result{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving directory path: %w", err)
	}

	var gitIgnore *ignore.GitIgnore
	gitignorePath := filepath.Join(absDir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		gitIgnore, err = ignore.CompileIgnoreFile(gitignorePath)
		if err != nil {
			// Malformed .gitignore should not sink the whole run
			s.logger.Warn("ignoring malformed .gitignore", "path", gitignorePath, "error", err)
			gitIgnore = nil
		}
	}

	walkErr := filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !s.supported(ext) {
			result.FilesSkipped++
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			result.FilesFailed++
			return nil
		}
		asset, err := s.SaveUpload(ctx, kb, filepath.Base(path), f)
		_ = f.Close()
		if err != nil {
			s.logger.Warn("failed to ingest file", "path", relPath, "error", err)
			result.FilesFailed++
			return nil
		}

		_, indexed, err := s.ProcessAsset(ctx, kb, asset, opts)
		if err != nil {
			s.logger.Warn("failed to process file", "path", relPath, "error", err)
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.ChunksIndexed += indexed
		result.TotalSize += info.Size()
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking directory: %w", walkErr)
	}

	result.Duration = time.Since(start)
	s.logger.Info("ingested directory",
		"knowledge_base_id", kb.ID,
		"dir", absDir,
		"added", result.FilesAdded,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed)
	return result, nil
}
