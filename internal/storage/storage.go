// Package storage provides the Postgres persistence layer: document rows,
// wrapped org keys and the pgvector-backed chunk store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyRunning indicates the document is being processed by another job.
var ErrAlreadyRunning = errors.New("ingestion already running")

// ErrAlreadyIndexed indicates the document is ready and force was not set.
var ErrAlreadyIndexed = errors.New("document already indexed")

// Document status values. The pipeline drives
// pending -> processing -> ready | error.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// NewPool connects to Postgres with pooled connections.
func NewPool(ctx context.Context, connString string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates the schema when it does not exist. The documents table is
// owned by the surrounding platform in production; creating it here keeps
// development and test environments self-contained.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	statements := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	file_type TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	rag_error TEXT,
	rag_indexed_at TIMESTAMPTZ,
	content_hash BYTEA,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (org_id, id)
);

CREATE TABLE IF NOT EXISTS org_keys (
	org_id TEXT PRIMARY KEY,
	wrapped_dek BYTEA NOT NULL,
	version INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rag_chunks (
	id BIGSERIAL PRIMARY KEY,
	org_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	ciphertext BYTEA NOT NULL,
	nonce BYTEA NOT NULL,
	aad TEXT NOT NULL,
	plaintext_sha256 BYTEA NOT NULL,
	section TEXT,
	page INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (org_id, document_id, chunk_index),
	FOREIGN KEY (org_id, document_id) REFERENCES documents (org_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS rag_chunks_org_idx ON rag_chunks (org_id);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1
		FROM pg_indexes
		WHERE schemaname = current_schema()
			AND indexname = 'rag_chunks_embedding_idx'
	) THEN
		EXECUTE 'CREATE INDEX rag_chunks_embedding_idx ON rag_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);';
	END IF;
END
$$;
`, dimension)

	_, err := pool.Exec(ctx, statements)
	if err != nil && strings.Contains(err.Error(), "ivfflat") {
		// The approximate index needs enough rows; exact scan is fine
		// until then.
		err = nil
	}
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
