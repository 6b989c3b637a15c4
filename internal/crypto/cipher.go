// Package crypto implements the RAG engine's envelope encryption: a process
// master key wraps one data-encryption key (DEK) per organization, and every
// chunk payload is sealed with its organization's DEK plus associated data
// binding the chunk to its tenant, document, and index.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the AEAD nonce length in bytes.
const NonceSize = chacha20poly1305.NonceSize

// TagSize is the AEAD authentication tag overhead in bytes.
const TagSize = chacha20poly1305.Overhead

// ErrIntegrity indicates that a ciphertext, nonce, or associated-data field
// was tampered with, or the wrong key was used. The payload must be treated
// as unreadable.
var ErrIntegrity = errors.New("integrity check failed")

// Encrypt seals plaintext under dek with a fresh random nonce. The aad string
// is authenticated but not encrypted; Decrypt must receive it byte-identical.
func Encrypt(plaintext, dek []byte, aad string) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(dek)
	if err != nil {
		return nil, nil, fmt.Errorf("init aead: %w", err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, []byte(aad))
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Any mismatch in key, nonce,
// ciphertext, or aad yields ErrIntegrity; the plaintext is never partially
// returned.
func Decrypt(ciphertext, nonce, dek []byte, aad string) ([]byte, error) {
	aead, err := chacha20poly1305.New(dek)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce length %d", ErrIntegrity, len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return plaintext, nil
}
