// Package chat turns retrieval results into grounded answers.
//
// The service retrieves the best chunks for a question, renders them into a
// documents-plus-question prompt and asks the model for an answer. Retrieval
// can be bypassed per request for plain conversation.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
	"github.com/docrag/docrag/internal/retriever"
)

// Generator produces one model completion. history carries the prior
// conversation turns, oldest first; prompt is the final user turn.
type Generator interface {
	Generate(ctx context.Context, system string, history []rag.ChatMessage, prompt string) (string, error)
}

// Retriever finds the chunks grounding an answer.
type Retriever interface {
	Search(ctx context.Context, kbID uuid.UUID, query string, limit int, hybrid bool) (retriever.Result, error)
}

// Request is one question against a knowledge base.
type Request struct {
	KnowledgeBaseID uuid.UUID
	Question        string

	// History holds the prior conversation turns, oldest first. The model
	// sees them before the question in both RAG and plain modes.
	History []rag.ChatMessage

	// Limit caps the retrieved chunks; 0 uses the service default.
	Limit int

	// UseRAG toggles retrieval. When false the model answers from its own
	// knowledge and Sources stays empty.
	UseRAG bool

	// Hybrid selects merged vector+keyword retrieval instead of vector-only.
	Hybrid bool
}

// Answer is a completed question.
type Answer struct {
	Text    string
	Sources []rag.RetrievedChunk

	// Degraded and Advisory surface retrieval degradation (keyword search
	// unavailable) to the caller; the answer itself is still grounded.
	Degraded bool
	Advisory string
}

// DefaultLimit is the retrieval depth when a request does not set one.
const DefaultLimit = 5

// Service answers questions.
type Service struct {
	retriever Retriever
	generator Generator
	logger    *slog.Logger
}

// New creates a chat Service.
func New(r Retriever, g Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{retriever: r, generator: g, logger: logger}
}

// Answer resolves one request. With retrieval enabled, an empty retrieval
// result short-circuits to a fixed "nothing found" answer without a model
// call. Retrieval and generation failures surface as wrapped sentinel
// errors from the rag package.
func (s *Service) Answer(ctx context.Context, req Request) (Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Answer{}, fmt.Errorf("%w: question is empty", rag.ErrValidation)
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 {
		return Answer{}, fmt.Errorf("%w: limit must be positive, got %d", rag.ErrValidation, limit)
	}
	for i, m := range req.History {
		if m.Role != rag.RoleUser && m.Role != rag.RoleAssistant {
			return Answer{}, fmt.Errorf("%w: history message %d has unknown role %q", rag.ErrValidation, i, m.Role)
		}
	}

	if !req.UseRAG {
		text, err := s.generator.Generate(ctx, systemPromptBasic, req.History, req.Question)
		if err != nil {
			return Answer{}, fmt.Errorf("generating answer: %w", err)
		}
		return Answer{Text: text}, nil
	}

	res, err := s.retriever.Search(ctx, req.KnowledgeBaseID, req.Question, limit, req.Hybrid)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	if len(res.Chunks) == 0 {
		s.logger.Info("no chunks retrieved for question", "knowledge_base_id", req.KnowledgeBaseID)
		return Answer{
			Text:     noDocumentsAnswer(req.Question),
			Sources:  []rag.RetrievedChunk{},
			Degraded: res.Degraded,
			Advisory: res.Advisory,
		}, nil
	}

	prompt := buildRAGPrompt(req.Question, res.Chunks)
	text, err := s.generator.Generate(ctx, systemPromptRAG, req.History, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	s.logger.Debug("answered question",
		"knowledge_base_id", req.KnowledgeBaseID,
		"sources", len(res.Chunks),
		"degraded", res.Degraded)
	return Answer{
		Text:     text,
		Sources:  res.Chunks,
		Degraded: res.Degraded,
		Advisory: res.Advisory,
	}, nil
}
