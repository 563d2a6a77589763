package message

import (
	"encoding/base64"

	"github.com/secsync-go/secsync/crypto"
)

// CreateUpdateParams bundles CreateUpdate's inputs.
type CreateUpdateParams struct {
	Content       []byte
	DocID         string
	RefSnapshotID string
	// Clock is this author's next per-author update clock: spec.md §4.1
	// requires it start at 0 for the first update against a snapshot and
	// increase by exactly 1 per subsequent update.
	Clock int

	Key            []byte
	SigningKeyPair crypto.KeyPair
}

// CreateUpdate encrypts content and signs it together with its publicData
// (spec.md §4.1).
func CreateUpdate(p CreateUpdateParams) (Update, error) {
	pub := UpdatePublicData{
		RefSnapshotID: p.RefSnapshotID,
		DocID:         p.DocID,
		PubKey:        encodeKey(p.SigningKeyPair.Public),
		Clock:         p.Clock,
	}

	ad, err := crypto.Canonicalize(pub.toMap())
	if err != nil {
		return Update{}, err
	}

	ciphertext, nonce, err := crypto.Seal(p.Key, p.Content, ad)
	if err != nil {
		return Update{}, err
	}

	signature := p.SigningKeyPair.Sign(signPayload(nonce, ciphertext, ad))

	return Update{
		PublicData: pub,
		Ciphertext: base64.RawURLEncoding.EncodeToString(ciphertext),
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Signature:  base64.RawURLEncoding.EncodeToString(signature),
	}, nil
}

// VerifyUpdateParams bundles VerifyAndDecryptUpdate's inputs.
type VerifyUpdateParams struct {
	Update Update
	Key    []byte

	ExpectedDocID    string
	ActiveSnapshotID string

	// CurrentClock is the highest clock already applied for this update's
	// author, or -1 if none has been applied yet.
	CurrentClock int

	// SkipIfCurrentClockIsHigher makes an update whose clock has already
	// been applied (a duplicate delivery) a silent no-op instead of an
	// error, matching the client's reconnect-replay tolerance (spec.md
	// §4.1, §5).
	SkipIfCurrentClockIsHigher bool
}

// VerifyAndDecryptUpdate authenticates upd's signature, checks it targets
// the currently active snapshot, enforces per-author clock monotonicity,
// and decrypts it. ignored=true means the update was a harmless duplicate
// and plaintext/newClock should not be applied.
func VerifyAndDecryptUpdate(p VerifyUpdateParams) (plaintext []byte, newClock int, ignored bool, err error) {
	upd := p.Update
	pub := upd.PublicData

	pubKeyBytes, err := pub.PubKey.Bytes()
	if err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}

	ad, err := crypto.Canonicalize(pub.toMap())
	if err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(upd.Ciphertext)
	if err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(upd.Nonce)
	if err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(upd.Signature)
	if err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}

	if err := crypto.Verify(pubKeyBytes, signPayload(nonce, ciphertext, ad), signature); err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}

	if pub.DocID != p.ExpectedDocID || pub.RefSnapshotID != p.ActiveSnapshotID {
		return nil, 0, false, newError(ErrUpdateWrongSnapshot, nil)
	}

	if pub.Clock <= p.CurrentClock {
		if p.SkipIfCurrentClockIsHigher {
			return nil, p.CurrentClock, true, nil
		}
		return nil, 0, false, newError(ErrUpdateClockMismatch, nil)
	}
	if pub.Clock != p.CurrentClock+1 {
		return nil, 0, false, newError(ErrUpdateClockMismatch, nil)
	}

	out, err := crypto.Open(p.Key, ciphertext, nonce, ad)
	if err != nil {
		return nil, 0, false, newError(ErrUpdateSignatureInvalid, err)
	}
	return out, pub.Clock, false, nil
}
