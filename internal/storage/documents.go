package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Document is one row of the externally-owned documents table. The pipeline
// mutates only status, rag_error, rag_indexed_at and content_hash.
type Document struct {
	ID           string
	OrgID        string
	Filename     string
	FileType     string
	FilePath     string
	Status       string
	RAGError     *string
	RAGIndexedAt *time.Time
	ContentHash  []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// maxErrorLength bounds the persisted error message.
const maxErrorLength = 500

// DocumentRepository reads and transitions document rows.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a document repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

const documentColumns = `id, org_id, filename, file_type, file_path, status, rag_error, rag_indexed_at, content_hash, created_at, updated_at`

// GetByID retrieves a document within its organization.
func (r *DocumentRepository) GetByID(ctx context.Context, orgID, docID string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE org_id = $1 AND id = $2`

	doc := &Document{}
	err := r.pool.QueryRow(ctx, query, orgID, docID).Scan(
		&doc.ID, &doc.OrgID, &doc.Filename, &doc.FileType, &doc.FilePath,
		&doc.Status, &doc.RAGError, &doc.RAGIndexedAt, &doc.ContentHash,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

// ClaimForProcessing transitions the document to processing. The single
// conditional UPDATE serializes concurrent ingestions of the same document:
// exactly one claimant wins, the rest observe AlreadyRunning. A ready
// document is claimed only with force.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, orgID, docID string, force bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $4, rag_error = NULL, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
			AND status <> $4
			AND ($3 OR status <> $5)`,
		orgID, docID, force, StatusProcessing, StatusReady,
	)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Lost the claim; find out why.
	var status string
	err = r.pool.QueryRow(ctx, `SELECT status FROM documents WHERE org_id = $1 AND id = $2`, orgID, docID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect document status: %w", err)
	}
	switch status {
	case StatusProcessing:
		return ErrAlreadyRunning
	case StatusReady:
		return ErrAlreadyIndexed
	default:
		// Status changed between the two statements; let the caller retry.
		return ErrAlreadyRunning
	}
}

// MarkReady records a successful ingestion.
func (r *DocumentRepository) MarkReady(ctx context.Context, orgID, docID string, contentHash []byte) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $3, rag_error = NULL, rag_indexed_at = NOW(), content_hash = $4, updated_at = NOW()
		WHERE org_id = $1 AND id = $2`,
		orgID, docID, StatusReady, contentHash,
	)
	if err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkError records a failed ingestion, truncating the message to the
// column budget.
func (r *DocumentRepository) MarkError(ctx context.Context, orgID, docID, message string) error {
	if len(message) > maxErrorLength {
		cut := maxErrorLength
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $3, rag_error = $4, updated_at = NOW()
		WHERE org_id = $1 AND id = $2`,
		orgID, docID, StatusError, message,
	)
	if err != nil {
		return fmt.Errorf("mark document error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPending returns a processing document to pending. Used on
// cancellation when no chunks were persisted.
func (r *DocumentRepository) ResetPending(ctx context.Context, orgID, docID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $3, updated_at = NOW()
		WHERE org_id = $1 AND id = $2 AND status = $4`,
		orgID, docID, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	return nil
}

// Insert creates a document row. Rows are owned by the surrounding platform
// in production; this exists for the CLI and tests.
func (r *DocumentRepository) Insert(ctx context.Context, doc *Document) error {
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, org_id, filename, file_type, file_path, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.OrgID, doc.Filename, doc.FileType, doc.FilePath, doc.Status,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Delete removes a document; chunks cascade.
func (r *DocumentRepository) Delete(ctx context.Context, orgID, docID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE org_id = $1 AND id = $2`, orgID, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
