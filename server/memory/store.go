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

// Package memory implements server.Store in memory, for tests, demos and
// single-process deployments. A document-level mutex stands in for the
// SERIALIZABLE transaction the postgres store uses; either way only one
// SaveSnapshot/SaveUpdate runs at a time per document (spec.md §5).
package memory

import (
	"context"
	"sync"

	"github.com/secsync-go/secsync/message"
	"github.com/secsync-go/secsync/server"
)

type updateKey struct {
	author string
	clock  int
}

type storedUpdate struct {
	update  message.Update
	version int
}

type docState struct {
	mu sync.Mutex

	activeSnapshotID string
	snapshots        map[string]message.Snapshot

	// per-snapshot bookkeeping, keyed by snapshot id.
	updatesBySnapshot map[string][]string // ordered updateKey.author+clock insertion, for LoadDocument ordering
	updateRecords     map[string]map[updateKey]storedUpdate
	clocks            map[string]map[string]int // snapshotID -> author -> highest applied clock
	nextVersion       map[string]int
}

func newDocState() *docState {
	return &docState{
		snapshots:         make(map[string]message.Snapshot),
		updatesBySnapshot: make(map[string][]string),
		updateRecords:     make(map[string]map[updateKey]storedUpdate),
		clocks:            make(map[string]map[string]int),
		nextVersion:       make(map[string]int),
	}
}

// Store is an in-memory server.Store.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*docState
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*docState)}
}

func (s *Store) doc(docID string) (*docState, bool) {
	s.mu.RLock()
	d, ok := s.docs[docID]
	s.mu.RUnlock()
	return d, ok
}

func (s *Store) GetDocument(ctx context.Context, docID string) (*server.Document, error) {
	d, ok := s.doc(docID)
	if !ok {
		return nil, server.ErrDocumentNotFound
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return &server.Document{DocID: docID, ActiveSnapshotID: d.activeSnapshotID}, nil
}

func (s *Store) CreateDocument(ctx context.Context, docID string) (*server.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[docID]; ok {
		return &server.Document{DocID: docID, ActiveSnapshotID: d.activeSnapshotID}, nil
	}
	s.docs[docID] = newDocState()
	return &server.Document{DocID: docID}, nil
}

func (s *Store) LoadDocument(ctx context.Context, docID string) (*message.Snapshot, []message.Update, error) {
	d, ok := s.doc(docID)
	if !ok {
		return nil, nil, server.ErrDocumentNotFound
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activeSnapshotID == "" {
		return nil, nil, nil
	}
	snap := d.snapshots[d.activeSnapshotID]
	updates := d.orderedUpdatesLocked(d.activeSnapshotID)
	return &snap, updates, nil
}

func (d *docState) orderedUpdatesLocked(snapshotID string) []message.Update {
	records := d.updateRecords[snapshotID]
	out := make([]message.Update, 0, len(records))
	for _, key := range d.updatesBySnapshot[snapshotID] {
		k := decodeKey(key)
		rec, ok := records[k]
		if !ok {
			continue
		}
		out = append(out, rec.update)
	}
	return out
}

// encodeKey/decodeKey let updatesBySnapshot preserve insertion order without
// depending on Go's randomized map iteration order.
func encodeKey(k updateKey) string { return k.author + "\x00" + itoa(k.clock) }
func decodeKey(s string) updateKey {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return updateKey{author: s[:i], clock: atoi(s[i+1:])}
		}
	}
	return updateKey{}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func atoi(s string) int {
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	n := 0
	for ; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

// SaveSnapshot implements the parent-chain + parentSnapshotUpdateClocks
// validation described in spec.md §4.3.
func (s *Store) SaveSnapshot(ctx context.Context, docID string, snap message.Snapshot) (server.SnapshotOutcome, error) {
	s.mu.Lock()
	d, ok := s.docs[docID]
	if !ok {
		d = newDocState()
		s.docs[docID] = d
	}
	s.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	pub := snap.PublicData

	// A brand-new document accepts its first snapshot unconditionally.
	if d.activeSnapshotID == "" {
		d.adoptSnapshotLocked(snap)
		return server.SnapshotOutcome{Accepted: true}, nil
	}

	if pub.ParentSnapshotID != d.activeSnapshotID {
		current := d.snapshots[d.activeSnapshotID]
		updates := d.orderedUpdatesLocked(d.activeSnapshotID)
		return server.SnapshotOutcome{
			Accepted:         false,
			Reason:           "snapshot is outdated: does not extend the document's active snapshot",
			OutdatedSnapshot: &current,
			OutdatedUpdates:  updates,
		}, nil
	}

	serverClocks := d.clocks[d.activeSnapshotID]
	var missed []message.Update
	for author, recordedClock := range serverClocks {
		claimed, ok := pub.ParentSnapshotUpdateClocks[author]
		if !ok {
			claimed = -1
		}
		if claimed < recordedClock {
			missed = append(missed, d.updatesForAuthorAboveLocked(d.activeSnapshotID, author, claimed)...)
		}
	}
	if len(missed) > 0 {
		return server.SnapshotOutcome{
			Accepted:      false,
			Reason:        "snapshot missed updates the server has already accepted",
			MissedUpdates: missed,
		}, nil
	}

	d.adoptSnapshotLocked(snap)
	return server.SnapshotOutcome{Accepted: true}, nil
}

func (d *docState) updatesForAuthorAboveLocked(snapshotID, author string, aboveClock int) []message.Update {
	var out []message.Update
	for _, key := range d.updatesBySnapshot[snapshotID] {
		k := decodeKey(key)
		if k.author != author || k.clock <= aboveClock {
			continue
		}
		if rec, ok := d.updateRecords[snapshotID][k]; ok {
			out = append(out, rec.update)
		}
	}
	return out
}

func (d *docState) adoptSnapshotLocked(snap message.Snapshot) {
	id := snap.PublicData.SnapshotID
	d.snapshots[id] = snap
	d.activeSnapshotID = id
	d.updatesBySnapshot[id] = nil
	d.updateRecords[id] = make(map[updateKey]storedUpdate)
	clocks := make(map[string]int, len(snap.PublicData.ParentSnapshotUpdateClocks))
	for author, clock := range snap.PublicData.ParentSnapshotUpdateClocks {
		clocks[author] = clock
	}
	d.clocks[id] = clocks
	d.nextVersion[id] = 0
}

// SaveUpdate implements the per-author clock validation and idempotent-ack
// rule described in spec.md §4.3 and §9 Open Question 3.
func (s *Store) SaveUpdate(ctx context.Context, docID string, upd message.Update) (server.UpdateOutcome, error) {
	d, ok := s.doc(docID)
	if !ok {
		return server.UpdateOutcome{Accepted: false, Reason: "document not found"}, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	pub := upd.PublicData
	if pub.RefSnapshotID != d.activeSnapshotID {
		return server.UpdateOutcome{Accepted: false, Reason: "refSnapshotId is not the document's active snapshot"}, nil
	}

	author := string(pub.PubKey)
	clocks := d.clocks[d.activeSnapshotID]
	records := d.updateRecords[d.activeSnapshotID]

	stored, known := clocks[author]
	expected := 0
	if known {
		expected = stored + 1
	}

	if pub.Clock != expected {
		// A duplicate delivery of the author's last-accepted update is
		// re-acknowledged idempotently; anything else is a genuine
		// ordering violation.
		if known && pub.Clock == stored {
			if rec, ok := records[updateKey{author: author, clock: pub.Clock}]; ok && rec.update.Ciphertext == upd.Ciphertext {
				return server.UpdateOutcome{Accepted: true, Idempotent: true, Version: rec.version}, nil
			}
		}
		return server.UpdateOutcome{Accepted: false, Reason: "clock is not exactly the author's next expected value"}, nil
	}

	version := d.nextVersion[d.activeSnapshotID]
	d.nextVersion[d.activeSnapshotID] = version + 1
	key := updateKey{author: author, clock: pub.Clock}
	records[key] = storedUpdate{update: upd, version: version}
	d.updatesBySnapshot[d.activeSnapshotID] = append(d.updatesBySnapshot[d.activeSnapshotID], encodeKey(key))
	clocks[author] = pub.Clock

	return server.UpdateOutcome{Accepted: true, Version: version}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }
