package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// AdminHandler exposes operational endpoints: key cache invalidation and
// chunk purges.
type AdminHandler struct {
	logger *observability.Logger
	vault  *crypto.KeyVault
	chunks *storage.ChunkRepository
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(logger *observability.Logger, vault *crypto.KeyVault, chunks *storage.ChunkRepository) *AdminHandler {
	return &AdminHandler{logger: logger, vault: vault, chunks: chunks}
}

// InvalidateKeysRequestDTO is the body of POST /rag/admin/keys/invalidate.
// An empty org_id drops every cached key.
type InvalidateKeysRequestDTO struct {
	OrgID string `json:"org_id,omitempty"`
}

// InvalidateKeys handles POST /rag/admin/keys/invalidate.
func (h *AdminHandler) InvalidateKeys(w http.ResponseWriter, r *http.Request) {
	var req InvalidateKeysRequestDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	if req.OrgID == "" {
		h.vault.InvalidateAll()
		h.logger.Info().Msg("All cached org keys invalidated")
		writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "scope": "all"})
		return
	}

	h.vault.Invalidate(req.OrgID)
	h.logger.WithOrg(req.OrgID).Info().Msg("Cached org key invalidated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "scope": req.OrgID})
}

// PurgeResponseDTO reports how many chunk rows a purge removed.
type PurgeResponseDTO struct {
	OrgID         string `json:"org_id"`
	DocumentID    string `json:"document_id"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}

// PurgeChunks handles DELETE /rag/documents/{orgID}/{documentID}/chunks.
// The document row itself is untouched so the caller can re-index later.
func (h *AdminHandler) PurgeChunks(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	docID := chi.URLParam(r, "documentID")
	if orgID == "" || docID == "" {
		writeError(w, http.StatusBadRequest, "org and document ids are required", "")
		return
	}

	deleted, err := h.chunks.DeleteByDocument(r.Context(), orgID, docID)
	if err != nil {
		h.logger.WithOrg(orgID).WithDocument(docID).Error().Err(err).Msg("Chunk purge failed")
		writeError(w, http.StatusInternalServerError, "purge failed", "")
		return
	}

	h.logger.WithOrg(orgID).WithDocument(docID).Info().Int64("deleted", deleted).Msg("Chunks purged")
	writeJSON(w, http.StatusOK, PurgeResponseDTO{OrgID: orgID, DocumentID: docID, ChunksDeleted: deleted})
}
