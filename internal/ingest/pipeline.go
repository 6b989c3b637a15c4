// Package ingest drives the document ingestion pipeline: fetch, extract,
// chunk, embed, encrypt, store.
package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/blob"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/chunk"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/extract"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// Sentinels surfaced by Submit. The storage layer owns the underlying
// claim semantics.
var (
	ErrAlreadyRunning = storage.ErrAlreadyRunning
	ErrAlreadyIndexed = storage.ErrAlreadyIndexed
)

// DocumentStore is the slice of the document repository the pipeline needs.
type DocumentStore interface {
	GetByID(ctx context.Context, orgID, docID string) (*storage.Document, error)
	ClaimForProcessing(ctx context.Context, orgID, docID string, force bool) error
	MarkReady(ctx context.Context, orgID, docID string, contentHash []byte) error
	MarkError(ctx context.Context, orgID, docID, message string) error
	ResetPending(ctx context.Context, orgID, docID string) error
}

// ChunkStore is the slice of the chunk repository the pipeline needs.
type ChunkStore interface {
	Upsert(ctx context.Context, rows []storage.ChunkRow) error
	DeleteFromIndex(ctx context.Context, orgID, docID string, fromIndex int) error
}

// Pipeline transforms one document into encrypted, embedded chunk rows.
type Pipeline struct {
	logger    *observability.Logger
	metrics   *observability.Metrics
	docs      DocumentStore
	chunks    ChunkStore
	blobs     blob.Store
	extractor *extract.Extractor
	chunker   *chunk.Chunker
	embedder  embedding.Embedder
	vault     *crypto.KeyVault
}

// NewPipeline wires the ingestion stages together.
func NewPipeline(
	logger *observability.Logger,
	metrics *observability.Metrics,
	docs DocumentStore,
	chunks ChunkStore,
	blobs blob.Store,
	extractor *extract.Extractor,
	chunker *chunk.Chunker,
	embedder embedding.Embedder,
	vault *crypto.KeyVault,
) *Pipeline {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pipeline{
		logger:    logger,
		metrics:   metrics,
		docs:      docs,
		chunks:    chunks,
		blobs:     blobs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vault:     vault,
	}
}

// Run claims the document and processes it synchronously. Most callers go
// through Service.Submit instead, which claims up front and hands the rest
// to the scheduler.
func (p *Pipeline) Run(ctx context.Context, orgID, docID string, force bool) error {
	if err := p.docs.ClaimForProcessing(ctx, orgID, docID, force); err != nil {
		return err
	}
	return p.RunClaimed(ctx, orgID, docID)
}

// RunClaimed processes a document already transitioned to processing. It
// owns the terminal status: ready on success, error on failure, pending
// again when cancelled before anything was persisted.
func (p *Pipeline) RunClaimed(ctx context.Context, orgID, docID string) error {
	log := p.logger.WithContext(ctx).WithOrg(orgID).WithDocument(docID)
	start := time.Now()

	persisted, err := p.process(ctx, orgID, docID, log)
	if err == nil {
		log.Info().Dur("elapsed", time.Since(start)).Msg("Document ingested")
		return nil
	}

	// The job context may already be dead; settle status on a detached one.
	detached, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if markErr := p.docs.MarkError(detached, orgID, docID, "timeout"); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to record timeout")
		}
	case errors.Is(err, context.Canceled):
		if !persisted {
			if resetErr := p.docs.ResetPending(detached, orgID, docID); resetErr != nil {
				log.Error().Err(resetErr).Msg("Failed to reset cancelled document")
			}
			return err
		}
		if markErr := p.docs.MarkError(detached, orgID, docID, "cancelled"); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to record cancellation")
		}
	default:
		if markErr := p.docs.MarkError(detached, orgID, docID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to record ingestion error")
		}
	}

	log.Error().Dur("elapsed", time.Since(start)).Err(err).Msg("Ingestion failed")
	return err
}

// process runs the pipeline stages. The returned bool reports whether any
// rows were persisted before the failure.
func (p *Pipeline) process(ctx context.Context, orgID, docID string, log *observability.Logger) (bool, error) {
	doc, err := p.docs.GetByID(ctx, orgID, docID)
	if err != nil {
		return false, fmt.Errorf("load document: %w", err)
	}

	obj, err := p.blobs.Fetch(ctx, blob.Ref{OrgID: orgID, DocumentID: docID, Path: doc.FilePath})
	if err != nil {
		return false, fmt.Errorf("fetch blob: %w", err)
	}

	mimeType := doc.FileType
	if mimeType == "" {
		mimeType = obj.MIMEType
	}

	result, err := p.extractor.Extract(obj.Data, mimeType, doc.Filename)
	if err != nil {
		return false, fmt.Errorf("extract %s: %w", doc.Filename, err)
	}

	contentHash := sha256.Sum256([]byte(result.Text))

	chunks := p.chunker.Split(result.Text)
	log.Debug().
		Int("chunks", len(chunks)).
		Int("text_chars", len(result.Text)).
		Str("method", result.Method).
		Msg("Document chunked")

	if len(chunks) == 0 {
		// Empty document: prune whatever a previous version stored.
		if err := p.chunks.DeleteFromIndex(ctx, orgID, docID, 0); err != nil {
			return false, err
		}
		if err := p.docs.MarkReady(ctx, orgID, docID, contentHash[:]); err != nil {
			return true, err
		}
		return true, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("embed chunks: %w", err)
	}

	dek, err := p.vault.GetOrCreate(ctx, orgID)
	if err != nil {
		return false, fmt.Errorf("obtain org key: %w", err)
	}

	rows := make([]storage.ChunkRow, len(chunks))
	for i, c := range chunks {
		aad := crypto.CanonicalAAD(orgID, docID, c.Index)
		ciphertext, nonce, err := crypto.Encrypt([]byte(c.Text), dek, aad)
		if err != nil {
			return false, fmt.Errorf("encrypt chunk %d: %w", c.Index, err)
		}

		hash := sha256.Sum256([]byte(c.Text))
		row := storage.ChunkRow{
			OrgID:           orgID,
			DocumentID:      docID,
			ChunkIndex:      c.Index,
			Embedding:       vectors[i],
			Ciphertext:      ciphertext,
			Nonce:           nonce,
			AAD:             aad,
			PlaintextSHA256: hash[:],
		}
		if c.Section != "" {
			section := c.Section
			row.Section = &section
		}
		if page := result.PageFor(c.Start); page > 0 {
			pageCopy := page
			row.Page = &pageCopy
		}
		rows[i] = row
	}

	if err := p.chunks.Upsert(ctx, rows); err != nil {
		return false, fmt.Errorf("store chunks: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ChunksUpserted.Add(float64(len(rows)))
	}
	if err := p.chunks.DeleteFromIndex(ctx, orgID, docID, len(rows)); err != nil {
		return true, err
	}

	if err := p.docs.MarkReady(ctx, orgID, docID, contentHash[:]); err != nil {
		return true, err
	}
	return true, nil
}
