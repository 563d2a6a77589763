package sync

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/secsync-go/secsync/message"
)

// frameType is the "type" discriminator spec.md §6 uses on every frame
// exchanged over the websocket transport.
type frameType string

const (
	frameDocument         frameType = "document"
	frameSnapshot         frameType = "snapshot"
	frameSnapshotSaved    frameType = "snapshot-saved"
	frameSnapshotSaveFail frameType = "snapshot-save-failed"
	frameUpdate           frameType = "update"
	frameUpdateSaved      frameType = "update-saved"
	frameUpdateSaveFail   frameType = "update-save-failed"
	frameEphemeral        frameType = "ephemeral-message"
	frameDocumentNotFound frameType = "document-not-found"
	frameUnauthorized     frameType = "unauthorized"
	frameDocumentError    frameType = "document-error"
)

// wireFrame is the envelope shape for every frame type; unused fields are
// omitted by the json tag and simply left zero on the side that doesn't
// need them.
type wireFrame struct {
	Type frameType `json:"type"`

	// frameDocument
	Snapshot *message.Snapshot  `json:"snapshot,omitempty"`
	Updates  []message.Update   `json:"updates,omitempty"`

	// frameSnapshot / frameUpdate / frameEphemeral carry exactly one of:
	SnapshotMsg  *message.Snapshot         `json:"snapshotMessage,omitempty"`
	UpdateMsg    *message.Update           `json:"updateMessage,omitempty"`
	EphemeralMsg *message.EphemeralMessage `json:"ephemeralMessage,omitempty"`

	// frameSnapshotSaved / frameUpdateSaved
	SnapshotID string `json:"snapshotId,omitempty"`
	Clock      int    `json:"clock,omitempty"`
	// ServerVersion is the per-snapshot monotonic version the server
	// assigns an accepted update (spec.md §6 update-saved ack).
	ServerVersion int `json:"serverVersion,omitempty"`

	// frameSnapshotSaveFail / frameUpdateSaveFail / frameDocumentError
	Reason string `json:"reason,omitempty"`

	// DocID rides on every frame the server addresses to one document
	// (spec.md §6); frameDocument doesn't need it since it's implied by
	// the connection, but acks and failures carry it explicitly.
	DocID string `json:"docId,omitempty"`
}

func decodeFrame(raw []byte) (wireFrame, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return wireFrame{}, fmt.Errorf("sync: decoding frame: %w", err)
	}
	return f, nil
}

func encodeFrame(f wireFrame) ([]byte, error) {
	return json.Marshal(f)
}

// decodeSnapshotCiphertext decodes a Snapshot's wire ciphertext back to raw
// bytes, used to anchor the hash chain for whatever snapshot is authored
// next (spec.md §3).
func decodeSnapshotCiphertext(snap message.Snapshot) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(snap.Ciphertext)
}

// decodeSnapshotProof decodes a wire-form (base64url) parent-snapshot proof
// back to the raw hash bytes crypto.ParentSnapshotProof expects as input.
func decodeSnapshotProof(proof string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(proof)
}
