// secsync is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// secsync is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with secsync. If not, see <https://www.gnu.org/licenses/>.

// Package server implements the server-side half of secsync: per-document
// connection fan-out, the snapshot/update store abstraction, and the
// transactional validation rules that make the protocol's causal-ordering
// invariants enforceable (spec.md §4.3).
package server

import (
	"encoding/json"
	"fmt"

	"github.com/secsync-go/secsync/message"
)

// FrameType discriminates the wire envelopes exchanged over a document's
// websocket connection (spec.md §6). This mirrors package sync's private
// wireFrame one-for-one; the two are kept independent since they're two
// ends of the same wire protocol running in different processes.
type FrameType string

const (
	FrameDocument         FrameType = "document"
	FrameSnapshot         FrameType = "snapshot"
	FrameSnapshotSaved    FrameType = "snapshot-saved"
	FrameSnapshotSaveFail FrameType = "snapshot-save-failed"
	FrameUpdate           FrameType = "update"
	FrameUpdateSaved      FrameType = "update-saved"
	FrameUpdateSaveFail   FrameType = "update-save-failed"
	FrameEphemeral        FrameType = "ephemeral-message"
	FrameDocumentNotFound FrameType = "document-not-found"
	FrameUnauthorized     FrameType = "unauthorized"
	FrameDocumentError    FrameType = "document-error"
)

// Frame is the JSON envelope shape for every frame type (spec.md §6).
type Frame struct {
	Type FrameType `json:"type"`

	// frameDocument
	Snapshot *message.Snapshot `json:"snapshot,omitempty"`
	Updates  []message.Update  `json:"updates,omitempty"`

	// frameSnapshot / frameUpdate / frameEphemeral
	SnapshotMsg  *message.Snapshot         `json:"snapshotMessage,omitempty"`
	UpdateMsg    *message.Update           `json:"updateMessage,omitempty"`
	EphemeralMsg *message.EphemeralMessage `json:"ephemeralMessage,omitempty"`

	DocID         string `json:"docId,omitempty"`
	SnapshotID    string `json:"snapshotId,omitempty"`
	Clock         int    `json:"clock,omitempty"`
	ServerVersion int    `json:"serverVersion,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// DecodeFrame parses one inbound wire frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("server: decoding frame: %w", err)
	}
	return f, nil
}

// Encode serializes f for sending over the transport.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
