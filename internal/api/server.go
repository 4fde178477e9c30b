package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/chat"
	"github.com/docrag/docrag/internal/indexer"
	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/retriever"
)

// Catalog is the document-store surface the handlers need.
type Catalog interface {
	CreateKnowledgeBase(ctx context.Context, name, dirPath string) (rag.KnowledgeBase, error)
	GetKnowledgeBase(ctx context.Context, id uuid.UUID) (rag.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context) ([]rag.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error

	GetAsset(ctx context.Context, id uuid.UUID) (rag.Asset, error)
	ListAssets(ctx context.Context, kbID uuid.UUID) ([]rag.Asset, error)
	DeleteAsset(ctx context.Context, id uuid.UUID) error
}

// Ingestor stores uploads and runs the chunking pipeline.
type Ingestor interface {
	SaveUpload(ctx context.Context, kb rag.KnowledgeBase, name string, r io.Reader) (rag.Asset, error)
	ProcessAsset(ctx context.Context, kb rag.KnowledgeBase, asset rag.Asset, opts indexer.Options) (int, int, error)
}

// Searcher runs retrieval queries.
type Searcher interface {
	Search(ctx context.Context, kbID uuid.UUID, query string, limit int, hybrid bool) (retriever.Result, error)
}

// Answerer resolves chat requests.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (chat.Answer, error)
}

// CollectionAdmin manages a knowledge base's vector collection lifecycle.
type CollectionAdmin interface {
	Reset(ctx context.Context, kbID uuid.UUID) error
	DropCollection(ctx context.Context, kbID uuid.UUID) error
	DeleteAssetVectors(ctx context.Context, kbID, assetID uuid.UUID) (int64, error)
}

// Pinger reports backing-store health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config for the HTTP server.
type Config struct {
	// RateLimit is requests per second per client IP; RateBurst is the
	// bucket capacity. Zero values fall back to the defaults.
	RateLimit float64
	RateBurst int

	// TrustProxy enables client-IP extraction from X-Forwarded-For and
	// X-Real-IP. Only set it behind a proxy that strips those headers
	// from the outside.
	TrustProxy bool
}

const (
	defaultRateLimit = 10
	defaultRateBurst = 30
)

// Server is the HTTP surface over the catalog, ingestion, retrieval and chat
// services.
type Server struct {
	catalog     Catalog
	ingestor    Ingestor
	searcher    Searcher
	answerer    Answerer
	collections CollectionAdmin
	pinger      Pinger
	logger      *slog.Logger
	handler     http.Handler
}

// NewServer wires the route table and middleware stack.
func NewServer(
	catalog Catalog,
	ingestor Ingestor,
	searcher Searcher,
	answerer Answerer,
	collections CollectionAdmin,
	pinger Pinger,
	cfg Config,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}

	s := &Server{
		catalog:     catalog,
		ingestor:    ingestor,
		searcher:    searcher,
		answerer:    answerer,
		collections: collections,
		pinger:      pinger,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/knowledge-bases", s.handleListKnowledgeBases)
	mux.HandleFunc("POST /api/v1/knowledge-bases", s.handleCreateKnowledgeBase)
	mux.HandleFunc("GET /api/v1/knowledge-bases/{id}", s.handleGetKnowledgeBase)
	mux.HandleFunc("DELETE /api/v1/knowledge-bases/{id}", s.handleDeleteKnowledgeBase)
	mux.HandleFunc("GET /api/v1/knowledge-bases/{id}/assets", s.handleListAssets)
	mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/assets", s.handleUploadAsset)
	mux.HandleFunc("DELETE /api/v1/assets/{id}", s.handleDeleteAsset)
	mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/index", s.handleIndex)
	mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/chat", s.handleChat)

	// Innermost first: rate limiting runs closest to the handler so rejected
	// requests are still logged and carry a request ID.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(newRateLimiter(cfg.RateLimit, cfg.RateBurst), cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes sit outside the stack so orchestrators are never rate
	// limited or logged per poll.
	top := http.NewServeMux()
	top.HandleFunc("GET /health", s.handleHealth)
	top.HandleFunc("GET /ready", s.handleReady)
	top.Handle("/", handler)

	s.handler = top
	return s
}

// Handler returns the root handler, ready for http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// pathID parses the {id} path segment as a UUID.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// knowledgeBaseFromPath resolves the {id} segment to a knowledge base,
// writing the error response itself on failure.
func (s *Server) knowledgeBaseFromPath(w http.ResponseWriter, r *http.Request) (rag.KnowledgeBase, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid knowledge base id")
		return rag.KnowledgeBase{}, false
	}
	kb, err := s.catalog.GetKnowledgeBase(r.Context(), id)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return rag.KnowledgeBase{}, false
	}
	return kb, true
}
