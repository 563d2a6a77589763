package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned by Verify when the signature does not
// authenticate message under the given public key.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// KeyPair is a minimal Ed25519 signing identity: just enough surface for
// secsync's message codecs to sign and for callers to hold/export the key
// material. Unlike the teacher's crypto.KeyPair this has no algorithm
// registry indirection — secsync only ever signs with Ed25519 (spec.md
// §3/§4 specify "detached Ed25519 signatures" exclusively).
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 signing identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a detached Ed25519 signature over message.
func (kp KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// Verify checks a detached Ed25519 signature against an arbitrary public
// key (not necessarily kp's own — used when authenticating remote peers).
func Verify(pub ed25519.PublicKey, message, signature []byte) error {
	if !ed25519.Verify(pub, message, signature) {
		return ErrInvalidSignature
	}
	return nil
}
