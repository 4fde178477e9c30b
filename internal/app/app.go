// Package app is the composition root: it builds every service from the
// configuration and hands the wired application to the command layer.
//
// Setup order matters: telemetry first so later components can trace,
// migrations before the pool is handed to stores, and the AI runtime before
// the pipelines that embed and generate.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docrag/docrag/db"
	"github.com/docrag/docrag/internal/api"
	"github.com/docrag/docrag/internal/chat"
	"github.com/docrag/docrag/internal/chunkstore"
	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/database"
	"github.com/docrag/docrag/internal/genai"
	"github.com/docrag/docrag/internal/indexer"
	"github.com/docrag/docrag/internal/ingest"
	"github.com/docrag/docrag/internal/observability"
	"github.com/docrag/docrag/internal/retriever"
	"github.com/docrag/docrag/internal/splitter"
	"github.com/docrag/docrag/internal/vectorindex"
	"github.com/docrag/docrag/internal/vectorindex/memory"
	"github.com/docrag/docrag/internal/vectorindex/pgvector"
)

// App holds the wired application.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Store     *chunkstore.Store
	Index     vectorindex.Index
	Indexer   *indexer.Indexer
	Retriever *retriever.Retriever
	Chat      *chat.Service
	Ingest    *ingest.Service
	Server    *api.Server

	shutdownTelemetry func(context.Context) error
}

// Setup builds the application. The caller owns the returned App and must
// Close it on shutdown.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: cfg.Telemetry.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up telemetry: %w", err)
		}
		a.shutdownTelemetry = shutdown
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.Pool = pool

	a.Store = chunkstore.New(pool, logger.With("component", "chunkstore"))

	switch cfg.VectorBackend {
	case config.VectorBackendMemory:
		a.Index = memory.New()
	default:
		a.Index = pgvector.New(pool, logger.With("component", "pgvector"))
	}

	runtime, err := genai.Init(ctx, cfg, logger.With("component", "genai"))
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("initializing AI runtime: %w", err)
	}
	embedder := genai.NewEmbedder(runtime.Embedder(), cfg.EmbedRateLimit)
	generator := genai.NewGenerator(runtime)

	ix, err := indexer.New(a.Index, embedder, cfg.EmbeddingDimension, cfg.EmbedBatchSize,
		logger.With("component", "indexer"))
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("creating indexer: %w", err)
	}
	a.Indexer = ix

	retr, err := retriever.New(embedder, a.Index, a.Store, retriever.Options{
		VectorWeight:    cfg.HybridVectorWeight,
		OverfetchFactor: cfg.OverfetchFactor,
	}, logger.With("component", "retriever"))
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("creating retriever: %w", err)
	}
	a.Retriever = retr

	a.Chat = chat.New(retr, generator, logger.With("component", "chat"))

	split, err := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	dataDir, err := resolveDataDir(cfg.DataDir)
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	ing, err := ingest.New(a.Store, ix, split, dataDir, logger.With("component", "ingest"))
	if err != nil {
		a.closeQuiet(ctx)
		return nil, fmt.Errorf("creating ingestion service: %w", err)
	}
	a.Ingest = ing

	a.Server = api.NewServer(a.Store, a.Ingest, retr, a.Chat, ix, pool, api.Config{
		TrustProxy: false,
	}, logger.With("component", "api"))

	logger.Info("application ready",
		"provider", cfg.Provider,
		"vector_backend", cfg.VectorBackend,
		"embedding_dimension", cfg.EmbeddingDimension)
	return a, nil
}

// resolveDataDir defaults the upload directory to ~/.docrag/data.
func resolveDataDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".docrag", "data"), nil
}

// Close releases resources in reverse setup order.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	a.Logger.Info("application shut down")
	return nil
}

// closeQuiet tears down a partially built App during a failed Setup.
func (a *App) closeQuiet(ctx context.Context) {
	if err := a.Close(ctx); err != nil {
		a.Logger.Warn("cleanup after failed setup", "error", err)
	}
}
