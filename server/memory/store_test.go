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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync-go/secsync/message"
	"github.com/secsync-go/secsync/server"
)

func testSnapshot(id, parentID string, clocks map[string]int) message.Snapshot {
	return message.Snapshot{
		PublicData: message.SnapshotPublicData{
			SnapshotID:                 id,
			DocID:                      "doc-1",
			PubKey:                     "author-pub",
			ParentSnapshotID:           parentID,
			ParentSnapshotUpdateClocks: clocks,
		},
		Ciphertext: "snap-ciphertext-" + id,
		Nonce:      "nonce",
		Signature:  "sig",
	}
}

func testUpdate(refSnapshotID, author string, clock int, ciphertext string) message.Update {
	return message.Update{
		PublicData: message.UpdatePublicData{
			RefSnapshotID: refSnapshotID,
			DocID:         "doc-1",
			PubKey:        message.PubKey(author),
			Clock:         clock,
		},
		Ciphertext: ciphertext,
		Nonce:      "nonce",
		Signature:  "sig",
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, server.ErrDocumentNotFound)
}

func TestCreateDocumentIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	d1, err := s.CreateDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", d1.DocID)
	assert.Empty(t, d1.ActiveSnapshotID)

	d2, err := s.CreateDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, d1.ActiveSnapshotID, d2.ActiveSnapshotID)
}

func TestSaveSnapshotAcceptsFirstSnapshotUnconditionally(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	snap := testSnapshot("snap-1", "", nil)
	outcome, err := s.SaveSnapshot(ctx, "doc-1", snap)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", doc.ActiveSnapshotID)
}

func TestSaveSnapshotRejectsStaleParent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := testSnapshot("snap-1", "", nil)
	_, err := s.SaveSnapshot(ctx, "doc-1", first)
	require.NoError(t, err)

	upd := testUpdate("snap-1", "author-a", 0, "update-0")
	_, err = s.SaveUpdate(ctx, "doc-1", upd)
	require.NoError(t, err)

	stale := testSnapshot("snap-2", "snap-0", nil)
	outcome, err := s.SaveSnapshot(ctx, "doc-1", stale)
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	require.NotNil(t, outcome.OutdatedSnapshot)
	assert.Equal(t, "snap-1", outcome.OutdatedSnapshot.PublicData.SnapshotID)
	require.Len(t, outcome.OutdatedUpdates, 1)
	assert.Equal(t, "update-0", outcome.OutdatedUpdates[0].Ciphertext)
}

func TestSaveSnapshotRejectsUndercountedParentClocks(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := testSnapshot("snap-1", "", nil)
	_, err := s.SaveSnapshot(ctx, "doc-1", first)
	require.NoError(t, err)

	for clock := 0; clock < 3; clock++ {
		_, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", clock, "update"))
		require.NoError(t, err)
	}

	// Claims to have only seen clocks up to 0, but the server has 2.
	next := testSnapshot("snap-2", "snap-1", map[string]int{"author-a": 0})
	outcome, err := s.SaveSnapshot(ctx, "doc-1", next)
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	assert.Len(t, outcome.MissedUpdates, 2)
}

func TestSaveSnapshotAcceptsCorrectParentClocks(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := testSnapshot("snap-1", "", nil)
	_, err := s.SaveSnapshot(ctx, "doc-1", first)
	require.NoError(t, err)

	_, err = s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 0, "update-0"))
	require.NoError(t, err)

	next := testSnapshot("snap-2", "snap-1", map[string]int{"author-a": 0})
	outcome, err := s.SaveSnapshot(ctx, "doc-1", next)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-2", doc.ActiveSnapshotID)
}

func TestSaveUpdateRejectsWrongRefSnapshot(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.SaveSnapshot(ctx, "doc-1", testSnapshot("snap-1", "", nil))
	require.NoError(t, err)

	outcome, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-0", "author-a", 0, "update"))
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
}

func TestSaveUpdateEnforcesMonotonicClock(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.SaveSnapshot(ctx, "doc-1", testSnapshot("snap-1", "", nil))
	require.NoError(t, err)

	outcome, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 1, "update"))
	require.NoError(t, err)
	assert.False(t, outcome.Accepted, "clock 1 skips the expected 0")

	outcome, err = s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 0, "update"))
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	assert.Equal(t, 0, outcome.Version)

	outcome, err = s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 2, "update"))
	require.NoError(t, err)
	assert.False(t, outcome.Accepted, "clock 2 skips the expected 1")
}

func TestSaveUpdateDuplicateDeliveryIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.SaveSnapshot(ctx, "doc-1", testSnapshot("snap-1", "", nil))
	require.NoError(t, err)

	first, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 0, "update-0"))
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 0, "update-0"))
	require.NoError(t, err)
	require.True(t, second.Accepted)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Version, second.Version)
}

func TestSaveUpdateAssignsMonotonicVersionsAcrossAuthors(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.SaveSnapshot(ctx, "doc-1", testSnapshot("snap-1", "", nil))
	require.NoError(t, err)

	a, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", 0, "from-a"))
	require.NoError(t, err)
	b, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-b", 0, "from-b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Version, b.Version)

	_, updates, err := s.LoadDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, updates, 2)
}

func TestLoadDocumentReturnsActiveSnapshotAndUpdatesInOrder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.SaveSnapshot(ctx, "doc-1", testSnapshot("snap-1", "", nil))
	require.NoError(t, err)

	for clock := 0; clock < 3; clock++ {
		_, err := s.SaveUpdate(ctx, "doc-1", testUpdate("snap-1", "author-a", clock, "update"))
		require.NoError(t, err)
	}

	snap, updates, err := s.LoadDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "snap-1", snap.PublicData.SnapshotID)
	require.Len(t, updates, 3)
	for i, u := range updates {
		assert.Equal(t, i, u.PublicData.Clock)
	}
}
