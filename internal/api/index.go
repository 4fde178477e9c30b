package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/indexer"
)

type indexRequest struct {
	// DoReset drops the collection before indexing, discarding every stored
	// vector for the knowledge base.
	DoReset bool `json:"do_reset"`

	// SkipDuplicates skips chunks already in the collection. Ignored when
	// DoReset is set.
	SkipDuplicates bool `json:"skip_duplicates"`
}

type indexedAsset struct {
	AssetID uuid.UUID `json:"asset_id"`
	Name    string    `json:"name"`
	Chunks  int       `json:"chunks"`
	Indexed int       `json:"indexed"`
	Error   string    `json:"error,omitempty"`
}

type indexResponse struct {
	Assets        []indexedAsset `json:"assets"`
	ChunksIndexed int            `json:"chunks_indexed"`
	AssetsFailed  int            `json:"assets_failed"`
}

// handleIndex runs the embedding pipeline over every asset in the knowledge
// base. With do_reset the collection is rebuilt from scratch; the reset
// happens once up front so per-asset runs never wipe each other's vectors.
// A failed asset is reported and the run continues.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromPath(w, r)
	if !ok {
		return
	}

	var req indexRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
			return
		}
	}

	assets, err := s.catalog.ListAssets(r.Context(), kb.ID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	if req.DoReset {
		if err := s.collections.Reset(r.Context(), kb.ID); err != nil {
			writeDomainError(w, s.logger, err)
			return
		}
	}

	// After the one-time reset each asset indexes with SkipDuplicates so
	// assets sharing identical chunks are not embedded twice.
	opts := indexer.Options{SkipDuplicates: req.SkipDuplicates || req.DoReset}

	resp := indexResponse{Assets: make([]indexedAsset, 0, len(assets))}
	for _, asset := range assets {
		chunks, indexed, err := s.ingestor.ProcessAsset(r.Context(), kb, asset, opts)
		entry := indexedAsset{AssetID: asset.ID, Name: asset.Name, Chunks: chunks, Indexed: indexed}
		if err != nil {
			s.logger.Warn("asset failed to index",
				"knowledge_base_id", kb.ID, "asset_id", asset.ID, "error", err)
			entry.Error = err.Error()
			resp.AssetsFailed++
		}
		resp.ChunksIndexed += indexed
		resp.Assets = append(resp.Assets, entry)
	}

	writeJSON(w, http.StatusOK, resp)
}
