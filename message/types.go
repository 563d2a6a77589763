// Package message implements the three wire message codecs secsync
// exchanges over the transport: Snapshot, Update and EphemeralMessage. Each
// codec pairs a Create* constructor with a VerifyAndDecrypt* function that
// authenticates, then decrypts, the envelope (spec.md §4.1).
package message

import (
	"encoding/base64"
)

// PubKey is a base64url (no padding) encoded Ed25519 public key, the wire
// form spec.md §6 requires for every "pubKey" field.
type PubKey string

func encodeKey(raw []byte) PubKey {
	return PubKey(base64.RawURLEncoding.EncodeToString(raw))
}

// Bytes decodes the public key back to raw Ed25519 bytes.
func (p PubKey) Bytes() ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(string(p))
}

// SnapshotPublicData is the authenticated (signed, AD-covered) metadata
// attached to a Snapshot. Extra carries host-defined additional fields
// (spec.md §3) and is merged flat into the canonicalized form.
type SnapshotPublicData struct {
	SnapshotID                 string         `json:"snapshotId"`
	DocID                      string         `json:"docId"`
	PubKey                     PubKey         `json:"pubKey"`
	ParentSnapshotID           string         `json:"parentSnapshotId,omitempty"`
	ParentSnapshotProof        string         `json:"parentSnapshotProof,omitempty"`
	ParentSnapshotUpdateClocks map[string]int `json:"parentSnapshotUpdateClocks,omitempty"`
	Extra                      map[string]interface{} `json:"-"`
}

func (p SnapshotPublicData) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"snapshotId": p.SnapshotID,
		"docId":      p.DocID,
		"pubKey":     string(p.PubKey),
	}
	if p.ParentSnapshotID != "" {
		m["parentSnapshotId"] = p.ParentSnapshotID
	}
	if p.ParentSnapshotProof != "" {
		m["parentSnapshotProof"] = p.ParentSnapshotProof
	}
	if p.ParentSnapshotUpdateClocks != nil {
		clocks := make(map[string]interface{}, len(p.ParentSnapshotUpdateClocks))
		for k, v := range p.ParentSnapshotUpdateClocks {
			clocks[k] = v
		}
		m["parentSnapshotUpdateClocks"] = clocks
	}
	for k, v := range p.Extra {
		m[k] = v
	}
	return m
}

// Snapshot is the full-state checkpoint wire envelope (spec.md §3/§6).
type Snapshot struct {
	PublicData SnapshotPublicData `json:"publicData"`
	Ciphertext string             `json:"ciphertext"` // base64url
	Nonce      string             `json:"nonce"`      // base64url
	Signature  string             `json:"signature"`  // base64url

	// ServerData is populated by the server on delivery; never signed.
	ServerData *SnapshotServerData `json:"serverData,omitempty"`
}

// SnapshotServerData carries server-assigned metadata (spec.md §6).
type SnapshotServerData struct {
	LatestVersion int `json:"latestVersion"`
}

// UpdatePublicData is the authenticated metadata attached to an Update.
type UpdatePublicData struct {
	RefSnapshotID string `json:"refSnapshotId"`
	DocID         string `json:"docId"`
	PubKey        PubKey `json:"pubKey"`
	Clock         int    `json:"clock"`
}

func (p UpdatePublicData) toMap() map[string]interface{} {
	return map[string]interface{}{
		"refSnapshotId": p.RefSnapshotID,
		"docId":         p.DocID,
		"pubKey":        string(p.PubKey),
		"clock":         p.Clock,
	}
}

// Update is the incremental-change wire envelope (spec.md §3/§6).
type Update struct {
	PublicData UpdatePublicData `json:"publicData"`
	Ciphertext string           `json:"ciphertext"`
	Nonce      string           `json:"nonce"`
	Signature  string           `json:"signature"`

	ServerData *UpdateServerData `json:"serverData,omitempty"`
}

// UpdateServerData carries the server-assigned per-snapshot version.
type UpdateServerData struct {
	Version int `json:"version"`
}

// EphemeralPublicData is the authenticated metadata attached to an
// EphemeralMessage.
type EphemeralPublicData struct {
	DocID  string `json:"docId"`
	PubKey PubKey `json:"pubKey"`
}

func (p EphemeralPublicData) toMap() map[string]interface{} {
	return map[string]interface{}{
		"docId":  p.DocID,
		"pubKey": string(p.PubKey),
	}
}

// EphemeralMessage is the unpersisted awareness/presence wire envelope
// (spec.md §3/§6). Its plaintext, once decrypted, follows the fixed framing
// [messageType:1][sessionId:24][sessionCounter:4 BE][body:rest].
type EphemeralMessage struct {
	PublicData EphemeralPublicData `json:"publicData"`
	Ciphertext string              `json:"ciphertext"`
	Nonce      string              `json:"nonce"`
	Signature  string              `json:"signature"`
}

// EphemeralMessageType discriminates the plaintext's first byte.
type EphemeralMessageType byte

const (
	EphemeralInitialize            EphemeralMessageType = 0
	EphemeralProof                 EphemeralMessageType = 1
	EphemeralProofAndRequestProof  EphemeralMessageType = 2
	EphemeralContent               EphemeralMessageType = 3
)
