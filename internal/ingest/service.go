package ingest

import (
	"context"
	"fmt"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/jobs"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// Service submits ingestion jobs to the scheduler. The processing claim is
// persisted before Submit returns so a 202 response always reflects a row
// already in processing.
type Service struct {
	pipeline  *Pipeline
	scheduler *jobs.Scheduler
	docs      DocumentStore
	logger    *observability.Logger
}

// NewService creates the submission front of the ingestion pipeline.
func NewService(pipeline *Pipeline, scheduler *jobs.Scheduler, docs DocumentStore, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{pipeline: pipeline, scheduler: scheduler, docs: docs, logger: logger}
}

// Submit claims the document and enqueues the pipeline run. A non-empty
// correlationID follows the job into its logs. Returns storage.ErrNotFound,
// ErrAlreadyRunning, ErrAlreadyIndexed, or jobs.ErrBusy.
func (s *Service) Submit(ctx context.Context, orgID, docID string, force bool, correlationID string) error {
	if err := s.docs.ClaimForProcessing(ctx, orgID, docID, force); err != nil {
		return err
	}

	job := jobs.Job{
		Name: fmt.Sprintf("ingest %s/%s", orgID, docID),
		Run: func(jobCtx context.Context) error {
			if correlationID != "" {
				jobCtx = observability.ContextWithCorrelationID(jobCtx, correlationID)
			}
			return s.pipeline.RunClaimed(jobCtx, orgID, docID)
		},
	}

	if err := s.scheduler.Submit(job); err != nil {
		// Undo the claim so the caller can retry once the queue drains.
		if resetErr := s.docs.ResetPending(ctx, orgID, docID); resetErr != nil {
			s.logger.Error().
				Str("org_id", orgID).
				Str("document_id", docID).
				Err(resetErr).
				Msg("Failed to release claim after queue overflow")
		}
		return err
	}
	return nil
}
