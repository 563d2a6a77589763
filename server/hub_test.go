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

package server

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync-go/secsync/message"
)

type fakeConn struct {
	docID string

	mu   sync.Mutex
	sent []Frame
}

func (c *fakeConn) Send(raw []byte) error {
	f, err := DecodeFrame(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) DocID() string { return c.docID }

func (c *fakeConn) frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]*Document
	snapshots map[string]message.Snapshot
	updates   map[string][]message.Update
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]*Document),
		snapshots: make(map[string]message.Snapshot),
		updates:   make(map[string][]message.Update),
	}
}

func (s *fakeStore) GetDocument(ctx context.Context, docID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[docID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return d, nil
}

func (s *fakeStore) CreateDocument(ctx context.Context, docID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Document{DocID: docID}
	s.docs[docID] = d
	return d, nil
}

func (s *fakeStore) LoadDocument(ctx context.Context, docID string) (*message.Snapshot, []message.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[docID]
	if !ok {
		return nil, nil, nil
	}
	return &snap, s.updates[docID], nil
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, docID string, snap message.Snapshot) (SnapshotOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[docID] = snap
	s.docs[docID] = &Document{DocID: docID, ActiveSnapshotID: snap.PublicData.SnapshotID}
	return SnapshotOutcome{Accepted: true}, nil
}

func (s *fakeStore) SaveUpdate(ctx context.Context, docID string, upd message.Update) (UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[docID] = append(s.updates[docID], upd)
	return UpdateOutcome{Accepted: true, Version: len(s.updates[docID]) - 1}, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func TestHubOnConnectSendsDocumentNotFoundWhenAbsentAndNotLenient(t *testing.T) {
	hub := NewHub(HubConfig{Store: newFakeStore()})
	conn := &fakeConn{docID: "doc-1"}

	hub.OnConnect(conn, "doc-1")

	frames := conn.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, FrameDocumentNotFound, frames[0].Type)
}

func TestHubOnConnectAutocreatesInLenientMode(t *testing.T) {
	hub := NewHub(HubConfig{Store: newFakeStore(), LenientMode: true})
	conn := &fakeConn{docID: "doc-1"}

	hub.OnConnect(conn, "doc-1")

	frames := conn.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, FrameDocument, frames[0].Type)
	assert.Nil(t, frames[0].Snapshot)
}

func TestHubOnConnectSendsExistingDocumentState(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = &Document{DocID: "doc-1", ActiveSnapshotID: "snap-1"}
	store.snapshots["doc-1"] = message.Snapshot{PublicData: message.SnapshotPublicData{SnapshotID: "snap-1", DocID: "doc-1"}}

	hub := NewHub(HubConfig{Store: store})
	conn := &fakeConn{docID: "doc-1"}

	hub.OnConnect(conn, "doc-1")

	frames := conn.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, FrameDocument, frames[0].Type)
	require.NotNil(t, frames[0].Snapshot)
	assert.Equal(t, "snap-1", frames[0].Snapshot.PublicData.SnapshotID)
}

func TestHubHandleSnapshotBroadcastsToOtherConnections(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = &Document{DocID: "doc-1"}
	hub := NewHub(HubConfig{Store: store})

	author := &fakeConn{docID: "doc-1"}
	peer := &fakeConn{docID: "doc-1"}
	hub.OnConnect(author, "doc-1")
	hub.OnConnect(peer, "doc-1")

	snap := message.Snapshot{PublicData: message.SnapshotPublicData{SnapshotID: "snap-1", DocID: "doc-1"}}
	frame := Frame{Type: FrameSnapshot, SnapshotMsg: &snap}
	raw, err := frame.Encode()
	require.NoError(t, err)

	hub.Handle(context.Background(), author, "doc-1", raw)

	authorFrames := author.frames()
	require.NotEmpty(t, authorFrames)
	assert.Equal(t, FrameSnapshotSaved, authorFrames[len(authorFrames)-1].Type)

	peerFrames := peer.frames()
	require.Len(t, peerFrames, 2) // initial document frame + broadcast snapshot
	assert.Equal(t, FrameSnapshot, peerFrames[1].Type)
	assert.Equal(t, "snap-1", peerFrames[1].SnapshotMsg.PublicData.SnapshotID)
}

func TestHubHandleUpdateDoesNotBroadcastIdempotentAcks(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = &Document{DocID: "doc-1", ActiveSnapshotID: "snap-1"}

	hub := NewHub(HubConfig{Store: &idempotentStore{fakeStore: store}})

	author := &fakeConn{docID: "doc-1"}
	peer := &fakeConn{docID: "doc-1"}
	hub.OnConnect(author, "doc-1")
	hub.OnConnect(peer, "doc-1")

	upd := message.Update{PublicData: message.UpdatePublicData{RefSnapshotID: "snap-1", DocID: "doc-1", PubKey: "a", Clock: 0}}
	frame := Frame{Type: FrameUpdate, UpdateMsg: &upd}
	raw, err := frame.Encode()
	require.NoError(t, err)

	hub.Handle(context.Background(), author, "doc-1", raw)

	peerFrames := peer.frames()
	assert.Len(t, peerFrames, 1, "idempotent ack must not be rebroadcast")
}

// idempotentStore wraps fakeStore to always report SaveUpdate as an
// idempotent accept, exercising Hub's no-rebroadcast path.
type idempotentStore struct {
	*fakeStore
}

func (s *idempotentStore) SaveUpdate(ctx context.Context, docID string, upd message.Update) (UpdateOutcome, error) {
	return UpdateOutcome{Accepted: true, Idempotent: true, Version: 0}, nil
}

func TestHubHandleEphemeralDropsDocIDMismatch(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = &Document{DocID: "doc-1"}
	hub := NewHub(HubConfig{Store: store})

	author := &fakeConn{docID: "doc-1"}
	peer := &fakeConn{docID: "doc-1"}
	hub.OnConnect(author, "doc-1")
	hub.OnConnect(peer, "doc-1")

	msg := message.EphemeralMessage{PublicData: message.EphemeralPublicData{DocID: "doc-2"}}
	frame := Frame{Type: FrameEphemeral, EphemeralMsg: &msg}
	raw, err := frame.Encode()
	require.NoError(t, err)

	hub.Handle(context.Background(), author, "doc-1", raw)

	authorFrames := author.frames()
	require.NotEmpty(t, authorFrames)
	assert.Equal(t, FrameDocumentError, authorFrames[len(authorFrames)-1].Type)

	peerFrames := peer.frames()
	assert.Len(t, peerFrames, 1, "mismatched ephemeral message must not be broadcast")
}

func TestHubOnDisconnectRemovesConnectionFromBroadcast(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(HubConfig{Store: store})

	author := &fakeConn{docID: "doc-1"}
	peer := &fakeConn{docID: "doc-1"}
	hub.OnConnect(author, "doc-1")
	hub.OnConnect(peer, "doc-1")
	hub.OnDisconnect(peer, "doc-1")

	snap := message.Snapshot{PublicData: message.SnapshotPublicData{SnapshotID: "snap-1", DocID: "doc-1"}}
	frame := Frame{Type: FrameSnapshot, SnapshotMsg: &snap}
	raw, err := frame.Encode()
	require.NoError(t, err)

	hub.Handle(context.Background(), author, "doc-1", raw)

	assert.Len(t, peer.frames(), 1, "disconnected peer must not receive the broadcast")
}
