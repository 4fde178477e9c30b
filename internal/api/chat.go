package api

import (
	"net/http"

	"github.com/docrag/docrag/internal/chat"
	"github.com/docrag/docrag/internal/rag"
)

// chatMessage is one prior conversation turn; role is "user" or "assistant".
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Question string `json:"question"`

	// History carries the prior conversation turns, oldest first.
	History []chatMessage `json:"history"`

	// Limit caps the chunks grounding the answer; 0 uses the default.
	Limit int `json:"limit"`

	// UseRAG toggles retrieval. Defaults to true; send false explicitly for
	// a plain model conversation with no sources.
	UseRAG *bool `json:"use_rag"`

	// Hybrid selects merged vector+keyword retrieval.
	Hybrid bool `json:"hybrid"`
}

type chatResponse struct {
	Answer   string                   `json:"answer"`
	Sources  []retrievedChunkResponse `json:"sources"`
	Degraded bool                     `json:"degraded,omitempty"`
	Advisory string                   `json:"advisory,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromPath(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	history := make([]rag.ChatMessage, len(req.History))
	for i, m := range req.History {
		history[i] = rag.ChatMessage{Role: m.Role, Text: m.Content}
	}

	answer, err := s.answerer.Answer(r.Context(), chat.Request{
		KnowledgeBaseID: kb.ID,
		Question:        req.Question,
		History:         history,
		Limit:           req.Limit,
		UseRAG:          useRAG,
		Hybrid:          req.Hybrid,
	})
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:   answer.Text,
		Sources:  toChunkResponses(answer.Sources),
		Degraded: answer.Degraded,
		Advisory: answer.Advisory,
	})
}
