package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/query"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/sse"
)

// AskHandler streams answers over SSE.
type AskHandler struct {
	logger   *observability.Logger
	metrics  *observability.Metrics
	pipeline *query.Pipeline
}

// NewAskHandler creates an ask handler.
func NewAskHandler(logger *observability.Logger, metrics *observability.Metrics, pipeline *query.Pipeline) *AskHandler {
	return &AskHandler{logger: logger, metrics: metrics, pipeline: pipeline}
}

// AskRequestDTO is the body of POST /rag/ask.
type AskRequestDTO struct {
	OrgID         string `json:"org_id"`
	Message       string `json:"message"`
	K             int    `json:"k,omitempty"`
	FastMode      bool   `json:"fast_mode,omitempty"`
	Citations     *bool  `json:"citations,omitempty"` // default true
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Ask handles POST /rag/ask. Validation failures are plain JSON errors;
// anything after the stream opens is reported as an SSE error event.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required", "")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	citations := true
	if req.Citations != nil {
		citations = *req.Citations
	}

	stream, err := sse.NewWriter(w, h.metrics)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", err.Error())
		return
	}

	opts := query.Options{
		K:             req.K,
		FastMode:      req.FastMode,
		Citations:     citations,
		CorrelationID: req.CorrelationID,
	}

	if err := h.pipeline.Run(r.Context(), req.OrgID, req.Message, opts, stream); err != nil {
		h.logger.WithOrg(req.OrgID).WithCorrelation(req.CorrelationID).
			Error().Err(err).Msg("Ask stream ended with error")
	}
}
