package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
)

// OrgKeyRepository persists wrapped per-organization DEKs. It implements
// crypto.KeyStore.
type OrgKeyRepository struct {
	pool *pgxpool.Pool
}

// NewOrgKeyRepository creates an org key repository.
func NewOrgKeyRepository(pool *pgxpool.Pool) *OrgKeyRepository {
	return &OrgKeyRepository{pool: pool}
}

// GetWrappedKey loads the wrapped DEK for an organization.
func (r *OrgKeyRepository) GetWrappedKey(ctx context.Context, orgID string) ([]byte, int, error) {
	var wrapped []byte
	var version int
	err := r.pool.QueryRow(ctx,
		`SELECT wrapped_dek, version FROM org_keys WHERE org_id = $1`, orgID,
	).Scan(&wrapped, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, crypto.ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load org key: %w", err)
	}
	return wrapped, version, nil
}

// PutWrappedKey inserts a wrapped DEK. A unique violation maps to
// crypto.ErrKeyExists so the vault can adopt the concurrent winner's key.
func (r *OrgKeyRepository) PutWrappedKey(ctx context.Context, orgID string, wrapped []byte, version int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO org_keys (org_id, wrapped_dek, version) VALUES ($1, $2, $3)`,
		orgID, wrapped, version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return crypto.ErrKeyExists
		}
		return fmt.Errorf("insert org key: %w", err)
	}
	return nil
}

// Delete removes the wrapped key row. Part of the manual rotation flow;
// existing chunks become unreadable unless the old key is retained
// elsewhere.
func (r *OrgKeyRepository) Delete(ctx context.Context, orgID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM org_keys WHERE org_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("delete org key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ crypto.KeyStore = (*OrgKeyRepository)(nil)
