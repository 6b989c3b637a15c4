package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// ChunkRow is one encrypted chunk as persisted. Plaintext never touches
// this layer.
type ChunkRow struct {
	ID              int64
	OrgID           string
	DocumentID      string
	ChunkIndex      int
	Embedding       []float32
	Ciphertext      []byte
	Nonce           []byte
	AAD             string
	PlaintextSHA256 []byte
	Section         *string
	Page            *int
	CreatedAt       time.Time
}

// SearchResult pairs a row with its cosine similarity in [-1, 1].
type SearchResult struct {
	Row        ChunkRow
	Similarity float64
}

// ChunkRepository is the pgvector-backed chunk store.
type ChunkRepository struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewChunkRepository creates a chunk repository bound to the configured
// embedding dimension.
func NewChunkRepository(pool *pgxpool.Pool, dimension int) *ChunkRepository {
	return &ChunkRepository{pool: pool, dimension: dimension}
}

// Upsert writes rows in one batch, keyed by (org_id, document_id,
// chunk_index). Re-ingesting a document overwrites in place; the row count
// never grows for the same chunk set.
func (r *ChunkRepository) Upsert(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		if len(row.Embedding) != r.dimension {
			return fmt.Errorf("chunk %d embedding dimension %d, store configured for %d",
				row.ChunkIndex, len(row.Embedding), r.dimension)
		}
		batch.Queue(`
			INSERT INTO rag_chunks
				(org_id, document_id, chunk_index, embedding, ciphertext, nonce, aad, plaintext_sha256, section, page)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (org_id, document_id, chunk_index) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				ciphertext = EXCLUDED.ciphertext,
				nonce = EXCLUDED.nonce,
				aad = EXCLUDED.aad,
				plaintext_sha256 = EXCLUDED.plaintext_sha256,
				section = EXCLUDED.section,
				page = EXCLUDED.page,
				created_at = NOW()`,
			row.OrgID, row.DocumentID, row.ChunkIndex,
			pgvector.NewVector(row.Embedding),
			row.Ciphertext, row.Nonce, row.AAD, row.PlaintextSHA256,
			row.Section, row.Page,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert chunk %d: %w", rows[i].ChunkIndex, err)
		}
	}
	return nil
}

// Search returns the top-K chunks of one organization by cosine similarity
// descending. The org filter applies before ranking; ties break by
// (document_id, chunk_index) ascending. Fewer than K rows is not an error.
func (r *ChunkRepository) Search(ctx context.Context, orgID string, queryVector []float32, k int) ([]SearchResult, error) {
	if len(queryVector) != r.dimension {
		return nil, fmt.Errorf("query vector dimension %d, store configured for %d", len(queryVector), r.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, document_id, chunk_index, ciphertext, nonce, aad,
			plaintext_sha256, section, page, created_at,
			1 - (embedding <=> $1) AS similarity
		FROM rag_chunks
		WHERE org_id = $2
		ORDER BY embedding <=> $1, document_id ASC, chunk_index ASC
		LIMIT $3`,
		pgvector.NewVector(queryVector), orgID, k,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(
			&res.Row.ID, &res.Row.OrgID, &res.Row.DocumentID, &res.Row.ChunkIndex,
			&res.Row.Ciphertext, &res.Row.Nonce, &res.Row.AAD,
			&res.Row.PlaintextSHA256, &res.Row.Section, &res.Row.Page,
			&res.Row.CreatedAt, &res.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return results, nil
}

// DeleteByDocument removes every chunk of one document. Returns the number
// of rows removed.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, orgID, docID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM rag_chunks WHERE org_id = $1 AND document_id = $2`, orgID, docID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteFromIndex removes chunks at or above fromIndex. Re-ingesting a
// shrunken document prunes the stale tail the upsert cannot reach.
func (r *ChunkRepository) DeleteFromIndex(ctx context.Context, orgID, docID string, fromIndex int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM rag_chunks WHERE org_id = $1 AND document_id = $2 AND chunk_index >= $3`,
		orgID, docID, fromIndex)
	if err != nil {
		return fmt.Errorf("prune chunks: %w", err)
	}
	return nil
}

// CountByDocument reports how many chunks a document has.
func (r *ChunkRepository) CountByDocument(ctx context.Context, orgID, docID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rag_chunks WHERE org_id = $1 AND document_id = $2`, orgID, docID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}
