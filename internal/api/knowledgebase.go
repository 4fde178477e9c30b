package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
)

type knowledgeBaseResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	DirPath   string    `json:"dir_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toKnowledgeBaseResponse(kb rag.KnowledgeBase) knowledgeBaseResponse {
	return knowledgeBaseResponse{
		ID:        kb.ID,
		Name:      kb.Name,
		DirPath:   kb.DirPath,
		CreatedAt: kb.CreatedAt,
		UpdatedAt: kb.UpdatedAt,
	}
}

type createKnowledgeBaseRequest struct {
	Name    string `json:"name"`
	DirPath string `json:"dir_path"`
}

func (s *Server) handleCreateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req createKnowledgeBaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}

	kb, err := s.catalog.CreateKnowledgeBase(r.Context(), req.Name, req.DirPath)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toKnowledgeBaseResponse(kb))
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	kbs, err := s.catalog.ListKnowledgeBases(r.Context())
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	resp := make([]knowledgeBaseResponse, len(kbs))
	for i, kb := range kbs {
		resp[i] = toKnowledgeBaseResponse(kb)
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledge_bases": resp})
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toKnowledgeBaseResponse(kb))
}

// handleDeleteKnowledgeBase removes the knowledge base and its vector
// collection. Assets and chunks cascade in the store; the collection drop is
// idempotent, so a missing collection does not fail the delete.
func (s *Server) handleDeleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid knowledge base id")
		return
	}

	if err := s.catalog.DeleteKnowledgeBase(r.Context(), id); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if err := s.collections.DropCollection(r.Context(), id); err != nil {
		// The catalog row is already gone; losing the collection drop leaves
		// an orphaned table, which the next create with this ID would reuse.
		s.logger.Error("failed to drop collection for deleted knowledge base",
			"knowledge_base_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
