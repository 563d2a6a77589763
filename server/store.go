package server

import (
	"context"
	"errors"

	"github.com/secsync-go/secsync/message"
)

// ErrDocumentNotFound is returned by Store.GetDocument/LoadDocument when no
// document exists for the given id (spec.md §4.3: "If absent, either
// create it (lenient mode) or send document-not-found").
var ErrDocumentNotFound = errors.New("server: document not found")

// Document is the minimal persisted document record: just enough to know
// whether a snapshot exists yet (spec.md §3: "At any moment has exactly
// one active snapshot id (or none, for a brand-new document)").
type Document struct {
	DocID            string
	ActiveSnapshotID string // "" if the document has no snapshot yet
}

// SnapshotOutcome is what Store.SaveSnapshot reports back.
type SnapshotOutcome struct {
	Accepted bool

	// Set when !Accepted and the rejection reason is "client was behind":
	// the server's current snapshot plus any updates against it.
	OutdatedSnapshot *message.Snapshot
	OutdatedUpdates  []message.Update

	// Set when !Accepted and the rejection reason is "snapshot missed
	// updates": the updates the author's parentSnapshotUpdateClocks claim
	// undercounted.
	MissedUpdates []message.Update

	Reason string
}

// UpdateOutcome is what Store.SaveUpdate reports back.
type UpdateOutcome struct {
	Accepted bool
	// Idempotent is true when Accepted because this exact (refSnapshotId,
	// pubKey, clock, ciphertext) tuple was already stored (spec.md §9 Open
	// Question 3: duplicate update-save is an idempotent ack).
	Idempotent bool
	Version    int
	Reason     string
}

// Store is the persistence and validation boundary spec.md §4.3 and §5
// describe: snapshot/update storage with transactional clock validation
// and snapshot-chain linkage. Implementations must run SaveSnapshot and
// SaveUpdate under a serializable transaction (or equivalent single-writer
// discipline) so concurrent authors cannot race the per-author clock
// table (spec.md §5 "Transactional discipline").
type Store interface {
	// GetDocument returns the document's record, or ErrDocumentNotFound.
	GetDocument(ctx context.Context, docID string) (*Document, error)

	// CreateDocument creates an empty document (no active snapshot yet);
	// used by the server's lenient-mode auto-create path.
	CreateDocument(ctx context.Context, docID string) (*Document, error)

	// LoadDocument returns the document's active snapshot (nil if none)
	// and every update stored against it, in clock order per author, for
	// the initial "document" frame (spec.md §4.3).
	LoadDocument(ctx context.Context, docID string) (*message.Snapshot, []message.Update, error)

	// SaveSnapshot validates snap's parent-chain linkage and
	// parentSnapshotUpdateClocks against server state and, if valid,
	// makes it the document's active snapshot (spec.md §4.3).
	SaveSnapshot(ctx context.Context, docID string, snap message.Snapshot) (SnapshotOutcome, error)

	// SaveUpdate validates upd's refSnapshotId and per-author clock against
	// server state and, if valid, persists it and assigns a monotonic
	// per-snapshot version (spec.md §4.3).
	SaveUpdate(ctx context.Context, docID string, upd message.Update) (UpdateOutcome, error)

	Close() error
	Ping(ctx context.Context) error
}
