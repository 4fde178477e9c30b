package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/rag"
)

type assetResponse struct {
	ID              uuid.UUID `json:"id"`
	KnowledgeBaseID uuid.UUID `json:"knowledge_base_id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Size            int64     `json:"size"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAssetResponse(a rag.Asset) assetResponse {
	return assetResponse{
		ID:              a.ID,
		KnowledgeBaseID: a.KnowledgeBaseID,
		Name:            a.Name,
		Type:            a.Type,
		Size:            a.Size,
		CreatedAt:       a.CreatedAt,
	}
}

// maxUploadMemory caps how much of a multipart upload is buffered in memory
// before spilling to a temp file.
const maxUploadMemory = 4 << 20

// handleUploadAsset accepts one multipart file under the "file" field and
// registers it as an asset. Chunking and embedding happen on the index call,
// not here, so uploads stay fast.
func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromPath(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid multipart request: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", `missing "file" field`)
		return
	}
	defer file.Close()

	asset, err := s.ingestor.SaveUpload(r.Context(), kb, header.Filename, file)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetResponse(asset))
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromPath(w, r)
	if !ok {
		return
	}

	assets, err := s.catalog.ListAssets(r.Context(), kb.ID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	resp := make([]assetResponse, len(assets))
	for i, a := range assets {
		resp[i] = toAssetResponse(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": resp})
}

// handleDeleteAsset removes an asset, its chunks and its vectors. Chunks
// cascade in the store; vectors are deleted by asset scope so search stops
// returning the document immediately.
func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid asset id")
		return
	}

	asset, err := s.catalog.GetAsset(r.Context(), id)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if err := s.catalog.DeleteAsset(r.Context(), id); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if _, err := s.collections.DeleteAssetVectors(r.Context(), asset.KnowledgeBaseID, id); err != nil {
		// The catalog row is gone; stale vectors get cleared on the next
		// reset index run.
		s.logger.Error("failed to delete asset vectors",
			"asset_id", id, "knowledge_base_id", asset.KnowledgeBaseID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
