package message

import (
	"encoding/base64"
	"fmt"

	"github.com/secsync-go/secsync/crypto"
)

// CreateSnapshotParams bundles the inputs CreateSnapshot needs. Bundling
// instead of a long positional signature mirrors how many fields are
// optional (ParentSnapshotCiphertext/GrandParentSnapshotProof are nil for a
// document's first snapshot).
type CreateSnapshotParams struct {
	Content []byte
	DocID   string

	ParentSnapshotID           string
	ParentSnapshotCiphertext   []byte // nil for the first snapshot in a doc
	GrandParentSnapshotProof   []byte
	ParentSnapshotUpdateClocks map[string]int

	// Extra carries host-defined additional authenticated data merged into
	// publicData (spec.md §3).
	Extra map[string]interface{}

	Key            []byte
	SigningKeyPair crypto.KeyPair
}

// CreateSnapshot encrypts content and signs the result together with its
// publicData, producing a fully wired Snapshot ready to send (spec.md
// §4.1). If ParentSnapshotCiphertext is non-nil a hash-chain proof is
// computed and attached.
func CreateSnapshot(p CreateSnapshotParams) (Snapshot, error) {
	snapshotID, err := crypto.NewID()
	if err != nil {
		return Snapshot{}, err
	}

	var parentProof string
	if p.ParentSnapshotCiphertext != nil {
		proof, err := crypto.ParentSnapshotProof(p.ParentSnapshotCiphertext, p.GrandParentSnapshotProof)
		if err != nil {
			return Snapshot{}, err
		}
		parentProof = base64.RawURLEncoding.EncodeToString(proof)
	}

	pub := SnapshotPublicData{
		SnapshotID:                 snapshotID,
		DocID:                      p.DocID,
		PubKey:                     encodeKey(p.SigningKeyPair.Public),
		ParentSnapshotID:           p.ParentSnapshotID,
		ParentSnapshotProof:        parentProof,
		ParentSnapshotUpdateClocks: p.ParentSnapshotUpdateClocks,
		Extra:                      p.Extra,
	}

	ad, err := crypto.Canonicalize(pub.toMap())
	if err != nil {
		return Snapshot{}, err
	}

	ciphertext, nonce, err := crypto.Seal(p.Key, p.Content, ad)
	if err != nil {
		return Snapshot{}, err
	}

	signature := p.SigningKeyPair.Sign(signPayload(nonce, ciphertext, ad))

	return Snapshot{
		PublicData: pub,
		Ciphertext: base64.RawURLEncoding.EncodeToString(ciphertext),
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Signature:  base64.RawURLEncoding.EncodeToString(signature),
	}, nil
}

// signPayload is the byte sequence every codec signs: nonce, then
// ciphertext, then the base64url encoding of the canonicalized publicData
// (spec.md §3: "signature: detached Ed25519 over {nonce, ciphertext,
// canonicalize(publicData)}").
func signPayload(nonce, ciphertext, ad []byte) []byte {
	adB64 := base64.RawURLEncoding.EncodeToString(ad)
	out := make([]byte, 0, len(nonce)+len(ciphertext)+len(adB64))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, adB64...)
	return out
}

// VerifySnapshotParams bundles VerifyAndDecryptSnapshot's inputs.
type VerifySnapshotParams struct {
	Snapshot      Snapshot
	Key           []byte
	ExpectedDocID string

	// ParentSnapshotCiphertext/GrandParentSnapshotProof should be nil when
	// verifying a document's first snapshot.
	ParentSnapshotCiphertext []byte
	GrandParentSnapshotProof []byte

	// LocallyObservedClocks, when non-nil, is compared against the
	// snapshot's ParentSnapshotUpdateClocks: every author clock the
	// snapshot claims to have observed must be >= what this client has
	// already applied, or the snapshot is rejected as having silently
	// dropped updates (spec.md §4.1, ErrSnapshotMissedUpdates).
	LocallyObservedClocks map[string]int
}

// VerifyAndDecryptSnapshot authenticates snap's signature, checks it belongs
// to expectedDocID, verifies its parent-chain proof when a parent is given,
// optionally verifies it did not miss already-applied updates, and decrypts
// it under key.
func VerifyAndDecryptSnapshot(p VerifySnapshotParams) ([]byte, error) {
	snap := p.Snapshot
	key := p.Key
	expectedDocID := p.ExpectedDocID
	parentSnapshotCiphertext := p.ParentSnapshotCiphertext
	grandParentSnapshotProof := p.GrandParentSnapshotProof

	pub := snap.PublicData

	pubKeyBytes, err := pub.PubKey.Bytes()
	if err != nil {
		return nil, newError(ErrSnapshotSignatureInvalid, err)
	}

	ad, err := crypto.Canonicalize(pub.toMap())
	if err != nil {
		return nil, newError(ErrSnapshotSignatureInvalid, err)
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(snap.Ciphertext)
	if err != nil {
		return nil, newError(ErrSnapshotSignatureInvalid, err)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(snap.Nonce)
	if err != nil {
		return nil, newError(ErrSnapshotSignatureInvalid, err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(snap.Signature)
	if err != nil {
		return nil, newError(ErrSnapshotSignatureInvalid, err)
	}

	if err := crypto.Verify(pubKeyBytes, signPayload(nonce, ciphertext, ad), signature); err != nil {
		return nil, newError(ErrSnapshotSignatureInvalid, err)
	}

	if pub.DocID != expectedDocID {
		return nil, newError(ErrSnapshotDocIDMismatch, nil)
	}

	if parentSnapshotCiphertext != nil {
		expectedProof, err := crypto.ParentSnapshotProof(parentSnapshotCiphertext, grandParentSnapshotProof)
		if err != nil {
			return nil, newError(ErrSnapshotParentProofMismatch, err)
		}
		if pub.ParentSnapshotProof != base64.RawURLEncoding.EncodeToString(expectedProof) {
			return nil, newError(ErrSnapshotParentProofMismatch, nil)
		}
	}

	if p.LocallyObservedClocks != nil {
		for author, observed := range p.LocallyObservedClocks {
			recorded, ok := pub.ParentSnapshotUpdateClocks[author]
			if !ok || recorded < observed {
				return nil, newError(ErrSnapshotMissedUpdates, fmt.Errorf("author %s: snapshot recorded clock %d, client observed %d", author, recorded, observed))
			}
		}
	}

	plaintext, err := crypto.Open(key, ciphertext, nonce, ad)
	if err != nil {
		return nil, newError(ErrSnapshotDecryptionFailed, err)
	}
	return plaintext, nil
}
