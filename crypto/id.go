package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// IDSize is the byte length of secsync identifiers (session ids, snapshot
// ids minted by the host, nonce-like values) before base64url encoding.
const IDSize = 24

// NewID returns a fresh 24-byte random identifier, base64url-encoded
// without padding, matching the wire format spec.md §3/§6 requires for
// session ids and similar opaque handles.
func NewID() (string, error) {
	buf := make([]byte, IDSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("new id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustNewID is NewID but panics on failure; only meant for call sites where
// failure would indicate an unrecoverable entropy-source problem (tests,
// CLI tooling).
func MustNewID() string {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}
