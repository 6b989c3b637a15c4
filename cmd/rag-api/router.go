// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/covalent-ai/covalent/libs/rag-engine/cmd/rag-api/handlers"
	"github.com/covalent-ai/covalent/libs/rag-engine/cmd/rag-api/middleware"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// RouterDeps carries the constructed handlers into the router.
type RouterDeps struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Ingest  *handlers.IngestHandler
	Ask     *handlers.AskHandler
	Health  *handlers.HealthHandler
	Admin   *handlers.AdminHandler

	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter creates the API router. The ask route carries no request
// timeout; the query pipeline enforces its own deadline so the SSE stream
// is not cut mid-answer.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(middleware.Correlation)

	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(deps.RequestTimeout))

		r.Get("/rag/health", deps.Health.Health)
		r.Post("/rag/index", deps.Ingest.Index)
		r.Get("/rag/documents/{orgID}/{documentID}", deps.Ingest.Status)
		r.Post("/rag/admin/keys/invalidate", deps.Admin.InvalidateKeys)
		r.Delete("/rag/documents/{orgID}/{documentID}/chunks", deps.Admin.PurgeChunks)
	})

	r.Post("/rag/ask", deps.Ask.Ask)

	return r
}
