package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, DEKSize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	dek := randomKey(t)
	aad := CanonicalAAD("org-1", "doc-1", 0)
	plaintext := []byte("Paris is the capital of France.")

	ciphertext, nonce, err := Encrypt(plaintext, dek, aad)
	require.NoError(t, err)

	got, err := Decrypt(ciphertext, nonce, dek, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_CiphertextLength(t *testing.T) {
	dek := randomKey(t)
	plaintext := []byte("twelve bytes")

	ciphertext, nonce, err := Encrypt(plaintext, dek, "a|b|0")
	require.NoError(t, err)

	assert.Len(t, nonce, NonceSize)
	assert.Len(t, ciphertext, len(plaintext)+TagSize)
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	dek := randomKey(t)
	plaintext := []byte("same input")

	_, n1, err := Encrypt(plaintext, dek, "a|b|0")
	require.NoError(t, err)
	_, n2, err := Encrypt(plaintext, dek, "a|b|0")
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	dek := randomKey(t)
	aad := CanonicalAAD("org-1", "doc-1", 3)

	ciphertext, nonce, err := Encrypt([]byte("secret body"), dek, aad)
	require.NoError(t, err)

	ciphertext[0] ^= 0x01
	_, err = Decrypt(ciphertext, nonce, dek, aad)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_TamperedNonce(t *testing.T) {
	dek := randomKey(t)
	aad := CanonicalAAD("org-1", "doc-1", 3)

	ciphertext, nonce, err := Encrypt([]byte("secret body"), dek, aad)
	require.NoError(t, err)

	nonce[len(nonce)-1] ^= 0x80
	_, err = Decrypt(ciphertext, nonce, dek, aad)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_TamperedAAD(t *testing.T) {
	dek := randomKey(t)

	ciphertext, nonce, err := Encrypt([]byte("secret body"), dek, CanonicalAAD("org-1", "doc-1", 3))
	require.NoError(t, err)

	// Moving the chunk to another document must fail authentication.
	_, err = Decrypt(ciphertext, nonce, dek, CanonicalAAD("org-1", "doc-2", 3))
	assert.ErrorIs(t, err, ErrIntegrity)

	// So must changing the index.
	_, err = Decrypt(ciphertext, nonce, dek, CanonicalAAD("org-1", "doc-1", 4))
	assert.ErrorIs(t, err, ErrIntegrity)

	// And the org.
	_, err = Decrypt(ciphertext, nonce, dek, CanonicalAAD("org-2", "doc-1", 3))
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_WrongKey(t *testing.T) {
	aad := CanonicalAAD("org-1", "doc-1", 0)
	ciphertext, nonce, err := Encrypt([]byte("secret body"), randomKey(t), aad)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, nonce, randomKey(t), aad)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_BadNonceLength(t *testing.T) {
	dek := randomKey(t)
	_, err := Decrypt([]byte("junk that is long enough"), []byte{1, 2, 3}, dek, "a|b|0")
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestEncrypt_EmptyPlaintext(t *testing.T) {
	dek := randomKey(t)
	aad := CanonicalAAD("org-1", "doc-1", 0)

	ciphertext, nonce, err := Encrypt(nil, dek, aad)
	require.NoError(t, err)
	assert.Len(t, ciphertext, TagSize)

	got, err := Decrypt(ciphertext, nonce, dek, aad)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCanonicalAAD_Format(t *testing.T) {
	assert.Equal(t, "org-1|doc-9|12", CanonicalAAD("org-1", "doc-9", 12))
	assert.Equal(t, "a|b|0", CanonicalAAD("a", "b", 0))
	assert.NotContains(t, CanonicalAAD("x", "y", 7), " ")
}
