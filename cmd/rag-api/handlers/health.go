package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/completion"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// HealthHandler reports service and dependency status.
type HealthHandler struct {
	logger    *observability.Logger
	pool      *pgxpool.Pool
	embedder  embedding.Embedder
	completer completion.Completer
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(logger *observability.Logger, pool *pgxpool.Pool, embedder embedding.Embedder, completer completion.Completer) *HealthHandler {
	return &HealthHandler{logger: logger, pool: pool, embedder: embedder, completer: completer}
}

// HealthResponseDTO is the body of GET /rag/health.
type HealthResponseDTO struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Database  string            `json:"database"`
	Providers map[string]string `json:"providers"`
}

// Health handles GET /rag/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponseDTO{
		Status:  "ok",
		Version: Version,
		Providers: map[string]string{
			"embedding":  h.embedder.Model(),
			"completion": h.completer.Name(),
		},
	}

	resp.Database = "ok"
	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Health check database ping failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
