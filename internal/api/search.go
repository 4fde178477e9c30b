package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
)

type searchRequest struct {
	Query string `json:"query"`

	// Limit caps the returned chunks; 0 uses the default.
	Limit int `json:"limit"`

	// Hybrid merges vector and keyword rankings into one list. Off by
	// default; plain searches rank by raw cosine similarity.
	Hybrid bool `json:"hybrid"`
}

const defaultSearchLimit = 10

type retrievedChunkResponse struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	AssetID uuid.UUID `json:"asset_id"`
	Text    string    `json:"text"`
	Score   float64   `json:"score"`
}

type searchResponse struct {
	Chunks   []retrievedChunkResponse `json:"chunks"`
	Degraded bool                     `json:"degraded,omitempty"`
	Advisory string                   `json:"advisory,omitempty"`
}

func toChunkResponses(chunks []rag.RetrievedChunk) []retrievedChunkResponse {
	resp := make([]retrievedChunkResponse, len(chunks))
	for i, c := range chunks {
		resp[i] = retrievedChunkResponse{
			ChunkID: c.ChunkID,
			AssetID: c.AssetID,
			Text:    c.Text,
			Score:   c.Score,
		}
	}
	return resp
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromPath(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}

	result, err := s.searcher.Search(r.Context(), kb.ID, req.Query, req.Limit, req.Hybrid)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Chunks:   toChunkResponses(result.Chunks),
		Degraded: result.Degraded,
		Advisory: result.Advisory,
	})
}
