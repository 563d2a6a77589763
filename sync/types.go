// Package sync implements the client-side synchronization state machine:
// connection lifecycle, incoming-frame dispatch, snapshot/update in-flight
// tracking, pending-changes buffering, reconnection reset, and the
// ephemeral sub-machine (spec.md §4.2).
package sync

import (
	"time"

	"github.com/secsync-go/secsync/crypto"
	"github.com/secsync-go/secsync/message"
)

// State is the top-level connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectingRetrying
	StateConnectedIdle
	StateConnectedProcessingQueues
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectingRetrying:
		return "connecting.retrying"
	case StateConnectedIdle:
		return "connected.idle"
	case StateConnectedProcessingQueues:
		return "connected.processingQueues"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DecryptionState tracks how much of the current document has been
// successfully decrypted (spec.md §3).
type DecryptionState int

const (
	DecryptionPending DecryptionState = iota
	DecryptionPartial
	DecryptionComplete
	DecryptionFailed
)

func (d DecryptionState) String() string {
	switch d {
	case DecryptionPending:
		return "pending"
	case DecryptionPartial:
		return "partial"
	case DecryptionComplete:
		return "complete"
	case DecryptionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// errorRingSize bounds the actor's authoring/receiving error buffers, which
// record ephemeral and non-ephemeral failures alike (spec.md §3/§7
// invariant 5).
const errorRingSize = 20

// BaseReconnectDelay is the unit backoff step the transport actor scales by
// (1 + unsuccessfulReconnects) before its next dial attempt (spec.md §5).
const BaseReconnectDelay = 1 * time.Second

// OpenTimeout is how long the transport actor waits for a socket to open
// before treating it as a disconnect (spec.md §5).
const OpenTimeout = 5 * time.Second

// ReconnectDelay computes the backoff the transport actor should wait
// before its next dial attempt, given how many consecutive attempts have
// already failed (spec.md §5).
func ReconnectDelay(unsuccessfulReconnects int) time.Duration {
	return BaseReconnectDelay * time.Duration(1+unsuccessfulReconnects)
}

// NewSnapshotData is what GetNewSnapshotData supplies when the machine
// needs to author a fresh snapshot (spec.md §6).
type NewSnapshotData struct {
	Content    []byte
	Key        []byte
	PublicData message.SnapshotPublicData
}

// HostCallbacks is the set of suspending collaborator calls spec.md §6
// requires the host application to provide. A failing callback is
// reported back to the actor as an error; for snapshot-key/isValidClient
// failures during initial document load this drives the machine to
// StateFailed (spec.md §5).
type HostCallbacks interface {
	GetSnapshotKey(publicData message.SnapshotPublicData) ([]byte, error)
	GetNewSnapshotData() (NewSnapshotData, error)
	GetEphemeralMessageKey() ([]byte, error)
	ApplySnapshot(plaintext []byte) error
	ApplyChanges(changes [][]byte) error
	ApplyEphemeralMessage(body []byte, senderPubKey string) error
	IsValidClient(pubKey string) bool
}

// Transport is the narrow send-only handle the actor holds; the transport
// actor (package transport/websocket) owns the socket itself (spec.md §9:
// "the machine holds a join-handle to the actor").
type Transport interface {
	Send(frame []byte) error
}

// Config bundles everything spec.md §6 says is fixed at construction.
type Config struct {
	DocID               string
	WebsocketHost       string
	WebsocketSessionKey string
	SigningKeyPair      crypto.KeyPair
	Logging             string // "off" | "error" | "debug"
	KnownSnapshotID     string
	KnownSnapshotKey    []byte
}
