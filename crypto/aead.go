package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the length of an XChaCha20-Poly1305 nonce.
const NonceSize = chacha20poly1305.NonceSizeX

// KeySize is the length of an XChaCha20-Poly1305 key.
const KeySize = chacha20poly1305.KeySize

// Seal encrypts plaintext under key with a freshly generated nonce and ad as
// associated data, returning (ciphertext, nonce). This is the AEAD
// primitive every message codec (Snapshot, Update, EphemeralMessage) builds
// on.
func Seal(key, plaintext, ad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("seal: new aead: %w", err)
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("seal: random nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, ad)
	return ciphertext, nonce, nil
}

// Open decrypts ciphertext under key, nonce and ad. A tag mismatch (wrong
// key, bit-flipped ciphertext/nonce/ad) returns a non-nil error; callers
// that need to fold this into a tagged SECSYNC_ERROR code must not surface
// AEAD failure detail beyond "decryption failed" (spec.md §4.1).
func Open(key, ciphertext, nonce, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("open: new aead: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("open: invalid nonce size %d", len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}
