package message

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/secsync-go/secsync/crypto"
)

// ephemeralFrameOverhead is the fixed-size prefix
// [messageType:1][sessionId:24][sessionCounter:4 BE] every ephemeral
// plaintext carries ahead of its body (spec.md §5).
const ephemeralFrameOverhead = 1 + crypto.IDSize + 4

// CreateEphemeralMessageParams bundles CreateEphemeralMessage's inputs.
type CreateEphemeralMessageParams struct {
	Type           EphemeralMessageType
	SessionID      string
	SessionCounter uint32
	Body           []byte

	DocID          string
	Key            []byte
	SigningKeyPair crypto.KeyPair
}

// CreateEphemeralMessage frames and encrypts an ephemeral plaintext, then
// signs the result together with its publicData (spec.md §5).
func CreateEphemeralMessage(p CreateEphemeralMessageParams) (EphemeralMessage, error) {
	sessionID, err := base64.RawURLEncoding.DecodeString(p.SessionID)
	if err != nil {
		return EphemeralMessage{}, fmt.Errorf("create ephemeral message: session id: %w", err)
	}
	if len(sessionID) != crypto.IDSize {
		return EphemeralMessage{}, fmt.Errorf("create ephemeral message: session id must be %d bytes", crypto.IDSize)
	}

	plaintext := make([]byte, 0, ephemeralFrameOverhead+len(p.Body))
	plaintext = append(plaintext, byte(p.Type))
	plaintext = append(plaintext, sessionID...)
	counter := make([]byte, 4)
	binary.BigEndian.PutUint32(counter, p.SessionCounter)
	plaintext = append(plaintext, counter...)
	plaintext = append(plaintext, p.Body...)

	pub := EphemeralPublicData{
		DocID:  p.DocID,
		PubKey: encodeKey(p.SigningKeyPair.Public),
	}

	ad, err := crypto.Canonicalize(pub.toMap())
	if err != nil {
		return EphemeralMessage{}, err
	}

	ciphertext, nonce, err := crypto.Seal(p.Key, plaintext, ad)
	if err != nil {
		return EphemeralMessage{}, err
	}

	signature := p.SigningKeyPair.Sign(signPayload(nonce, ciphertext, ad))

	return EphemeralMessage{
		PublicData: pub,
		Ciphertext: base64.RawURLEncoding.EncodeToString(ciphertext),
		Nonce:      base64.RawURLEncoding.EncodeToString(nonce),
		Signature:  base64.RawURLEncoding.EncodeToString(signature),
	}, nil
}

// DecryptedEphemeralMessage is the parsed plaintext frame returned by
// VerifyAndDecryptEphemeralMessage. Session/replay-window bookkeeping is the
// caller's responsibility (package ephemeral).
type DecryptedEphemeralMessage struct {
	Type           EphemeralMessageType
	SessionID      string
	SessionCounter uint32
	Body           []byte
}

// VerifyAndDecryptEphemeralMessage authenticates msg's signature, checks its
// docId, decrypts it, and parses the fixed plaintext frame. It performs no
// session or replay validation; callers combine this with package
// ephemeral's Session tracking (spec.md §5).
func VerifyAndDecryptEphemeralMessage(msg EphemeralMessage, key []byte, expectedDocID string) (DecryptedEphemeralMessage, error) {
	pub := msg.PublicData

	pubKeyBytes, err := pub.PubKey.Bytes()
	if err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralSignatureInvalid, err)
	}

	ad, err := crypto.Canonicalize(pub.toMap())
	if err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralSignatureInvalid, err)
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralSignatureInvalid, err)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(msg.Nonce)
	if err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralSignatureInvalid, err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(msg.Signature)
	if err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralSignatureInvalid, err)
	}

	if err := crypto.Verify(pubKeyBytes, signPayload(nonce, ciphertext, ad), signature); err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralSignatureInvalid, err)
	}

	if pub.DocID != expectedDocID {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralDocIDMismatch, nil)
	}

	plaintext, err := crypto.Open(key, ciphertext, nonce, ad)
	if err != nil {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralDecryptionFailed, err)
	}
	if len(plaintext) < ephemeralFrameOverhead {
		return DecryptedEphemeralMessage{}, newError(ErrEphemeralDecryptionFailed, fmt.Errorf("plaintext too short: %d bytes", len(plaintext)))
	}

	msgType := EphemeralMessageType(plaintext[0])
	sessionID := plaintext[1 : 1+crypto.IDSize]
	counter := binary.BigEndian.Uint32(plaintext[1+crypto.IDSize : ephemeralFrameOverhead])
	body := plaintext[ephemeralFrameOverhead:]

	return DecryptedEphemeralMessage{
		Type:           msgType,
		SessionID:      base64.RawURLEncoding.EncodeToString(sessionID),
		SessionCounter: counter,
		Body:           body,
	}, nil
}
