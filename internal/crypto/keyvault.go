package crypto

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// DEKSize is the length of every data-encryption key.
const DEKSize = 32

// MasterKeySize is the required master key length.
const MasterKeySize = 32

var (
	// ErrKeyNotFound indicates no wrapped DEK exists for the organization.
	ErrKeyNotFound = errors.New("org key not found")
	// ErrKeyExists indicates a concurrent writer already persisted a key.
	ErrKeyExists = errors.New("org key already exists")
)

// KeyStore is the persistence surface the vault needs. Implementations must
// return an error matching ErrKeyNotFound when no row exists for the
// organization and ErrKeyExists when an insert hits an existing row.
type KeyStore interface {
	GetWrappedKey(ctx context.Context, orgID string) (wrapped []byte, version int, err error)
	PutWrappedKey(ctx context.Context, orgID string, wrapped []byte, version int) error
}

// KeyVault maintains per-organization DEKs wrapped under the process master
// key. Decrypted DEKs are cached for the process lifetime; the cache is
// dropped only by explicit admin invalidation.
type KeyVault struct {
	masterKey []byte
	store     KeyStore
	logger    *observability.Logger

	mu   sync.RWMutex
	deks map[string][]byte
}

// NewKeyVault creates a vault around the given master key. The key must be
// exactly 32 bytes; the caller obtains it from config at process start.
func NewKeyVault(masterKey []byte, store KeyStore, logger *observability.Logger) (*KeyVault, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(masterKey))
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &KeyVault{
		masterKey: masterKey,
		store:     store,
		logger:    logger,
		deks:      make(map[string][]byte),
	}, nil
}

// GetOrCreate returns the organization's DEK, lazily generating and
// persisting a wrapped key on first use.
func (v *KeyVault) GetOrCreate(ctx context.Context, orgID string) ([]byte, error) {
	if dek, ok := v.cached(orgID); ok {
		return dek, nil
	}

	wrapped, version, err := v.store.GetWrappedKey(ctx, orgID)
	switch {
	case err == nil:
		return v.unwrapAndCache(orgID, wrapped, version)
	case errors.Is(err, ErrKeyNotFound):
		return v.create(ctx, orgID)
	default:
		return nil, fmt.Errorf("load org key: %w", err)
	}
}

// Get returns the organization's DEK, failing with ErrKeyNotFound when no
// wrapped key exists.
func (v *KeyVault) Get(ctx context.Context, orgID string) ([]byte, error) {
	if dek, ok := v.cached(orgID); ok {
		return dek, nil
	}

	wrapped, version, err := v.store.GetWrappedKey(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("load org key: %w", err)
	}
	return v.unwrapAndCache(orgID, wrapped, version)
}

// Invalidate drops the cached DEK for one organization. The wrapped row is
// untouched; the next request unwraps it again.
func (v *KeyVault) Invalidate(orgID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if dek, ok := v.deks[orgID]; ok {
		zeroize(dek)
		delete(v.deks, orgID)
	}
}

// InvalidateAll drops every cached DEK.
func (v *KeyVault) InvalidateAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for org, dek := range v.deks {
		zeroize(dek)
		delete(v.deks, org)
	}
}

// CachedKeys reports how many DEKs are currently cached.
func (v *KeyVault) CachedKeys() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.deks)
}

func (v *KeyVault) cached(orgID string) ([]byte, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	dek, ok := v.deks[orgID]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(dek))
	copy(out, dek)
	return out, true
}

func (v *KeyVault) create(ctx context.Context, orgID string) ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}

	wrapped, err := v.wrap(dek, orgID)
	if err != nil {
		return nil, err
	}

	err = v.store.PutWrappedKey(ctx, orgID, wrapped, 1)
	if errors.Is(err, ErrKeyExists) {
		// Another request created the key first; adopt theirs.
		zeroize(dek)
		existing, version, getErr := v.store.GetWrappedKey(ctx, orgID)
		if getErr != nil {
			return nil, fmt.Errorf("reload org key after conflict: %w", getErr)
		}
		return v.unwrapAndCache(orgID, existing, version)
	}
	if err != nil {
		return nil, fmt.Errorf("persist org key: %w", err)
	}

	v.cache(orgID, dek)
	v.logger.Info().Str("org_id", orgID).Int("version", 1).Msg("Created org key")

	out := make([]byte, len(dek))
	copy(out, dek)
	return out, nil
}

func (v *KeyVault) unwrapAndCache(orgID string, wrapped []byte, version int) ([]byte, error) {
	dek, err := v.unwrap(wrapped, orgID)
	if err != nil {
		return nil, err
	}

	v.cache(orgID, dek)
	v.logger.Debug().Str("org_id", orgID).Int("version", version).Msg("Unwrapped org key")

	out := make([]byte, len(dek))
	copy(out, dek)
	return out, nil
}

func (v *KeyVault) cache(orgID string, dek []byte) {
	held := make([]byte, len(dek))
	copy(held, dek)
	v.mu.Lock()
	v.deks[orgID] = held
	v.mu.Unlock()
}

// wrap seals a DEK under the master key with the org id as associated data,
// prepending the nonce to the ciphertext.
func (v *KeyVault) wrap(dek []byte, orgID string) ([]byte, error) {
	ciphertext, nonce, err := Encrypt(dek, v.masterKey, orgID)
	if err != nil {
		return nil, fmt.Errorf("wrap dek: %w", err)
	}
	return append(nonce, ciphertext...), nil
}

// unwrap reverses wrap. A blob moved between organizations fails the AAD
// check and is reported as an integrity error.
func (v *KeyVault) unwrap(wrapped []byte, orgID string) ([]byte, error) {
	if len(wrapped) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: wrapped key too short", ErrIntegrity)
	}
	nonce, ciphertext := wrapped[:NonceSize], wrapped[NonceSize:]
	dek, err := Decrypt(ciphertext, nonce, v.masterKey, orgID)
	if err != nil {
		return nil, fmt.Errorf("unwrap dek: %w", err)
	}
	return dek, nil
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
