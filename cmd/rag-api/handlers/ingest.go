package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/ingest"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/jobs"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// IngestHandler handles document indexing requests.
type IngestHandler struct {
	logger  *observability.Logger
	service *ingest.Service
	docs    *storage.DocumentRepository
	chunks  *storage.ChunkRepository
}

// NewIngestHandler creates an ingest handler.
func NewIngestHandler(logger *observability.Logger, service *ingest.Service, docs *storage.DocumentRepository, chunks *storage.ChunkRepository) *IngestHandler {
	return &IngestHandler{logger: logger, service: service, docs: docs, chunks: chunks}
}

// IndexRequestDTO is the body of POST /rag/index.
type IndexRequestDTO struct {
	OrgID         string `json:"org_id"`
	DocumentID    string `json:"document_id"`
	Force         bool   `json:"force,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// IndexResponseDTO acknowledges a queued indexing job.
type IndexResponseDTO struct {
	OrgID      string `json:"org_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// Index handles POST /rag/index.
func (h *IngestHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req IndexRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required", "")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required", "")
		return
	}

	if req.CorrelationID == "" {
		req.CorrelationID = observability.CorrelationIDFromContext(r.Context())
	}
	log := h.logger.WithOrg(req.OrgID).WithDocument(req.DocumentID)
	if req.CorrelationID != "" {
		log = log.WithCorrelation(req.CorrelationID)
	}

	err := h.service.Submit(r.Context(), req.OrgID, req.DocumentID, req.Force, req.CorrelationID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found", "")
		return
	case errors.Is(err, storage.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "indexing already in progress", "")
		return
	case errors.Is(err, storage.ErrAlreadyIndexed):
		writeError(w, http.StatusConflict, "document already indexed", "retry with force to re-index")
		return
	case errors.Is(err, jobs.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "ingestion queue is full", "retry later")
		return
	default:
		log.Error().Err(err).Msg("Failed to queue indexing")
		writeError(w, http.StatusInternalServerError, "failed to queue indexing", "")
		return
	}

	log.Info().Bool("force", req.Force).Msg("Indexing queued")
	writeJSON(w, http.StatusAccepted, IndexResponseDTO{
		OrgID:      req.OrgID,
		DocumentID: req.DocumentID,
		Status:     storage.StatusProcessing,
	})
}

// DocumentStatusDTO is the body of GET /rag/documents/{orgID}/{documentID}.
type DocumentStatusDTO struct {
	OrgID      string `json:"org_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	IndexedAt  string `json:"indexed_at,omitempty"`
	Chunks     int    `json:"chunks"`
}

// Status handles GET /rag/documents/{orgID}/{documentID}.
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	docID := chi.URLParam(r, "documentID")

	doc, err := h.docs.GetByID(r.Context(), orgID, docID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found", "")
		return
	}
	if err != nil {
		h.logger.WithOrg(orgID).Error().Err(err).Msg("Failed to load document")
		writeError(w, http.StatusInternalServerError, "failed to load document", "")
		return
	}

	resp := DocumentStatusDTO{
		OrgID:      doc.OrgID,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status,
	}
	if doc.RAGError != nil {
		resp.Error = *doc.RAGError
	}
	if doc.RAGIndexedAt != nil {
		resp.IndexedAt = doc.RAGIndexedAt.UTC().Format(time.RFC3339)
	}
	if count, err := h.chunks.CountByDocument(r.Context(), orgID, docID); err == nil {
		resp.Chunks = count
	}

	writeJSON(w, http.StatusOK, resp)
}
