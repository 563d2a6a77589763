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

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/secsync-go/secsync/message"
	"github.com/secsync-go/secsync/server"
)

func (s *Store) GetDocument(ctx context.Context, docID string) (*server.Document, error) {
	var activeSnapshotID *string
	err := s.pool.QueryRow(ctx,
		`SELECT active_snapshot_id FROM documents WHERE doc_id = $1`, docID,
	).Scan(&activeSnapshotID)
	if err == pgx.ErrNoRows {
		return nil, server.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get document: %w", err)
	}
	doc := &server.Document{DocID: docID}
	if activeSnapshotID != nil {
		doc.ActiveSnapshotID = *activeSnapshotID
	}
	return doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, docID string) (*server.Document, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (doc_id) VALUES ($1) ON CONFLICT (doc_id) DO NOTHING`, docID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: create document: %w", err)
	}
	return s.GetDocument(ctx, docID)
}

func (s *Store) LoadDocument(ctx context.Context, docID string) (*message.Snapshot, []message.Update, error) {
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if doc.ActiveSnapshotID == "" {
		return nil, nil, nil
	}

	snap, err := s.loadSnapshot(ctx, doc.ActiveSnapshotID)
	if err != nil {
		return nil, nil, err
	}
	updates, err := s.loadUpdates(ctx, doc.ActiveSnapshotID)
	if err != nil {
		return nil, nil, err
	}
	return snap, updates, nil
}

func (s *Store) loadSnapshot(ctx context.Context, snapshotID string) (*message.Snapshot, error) {
	var snap message.Snapshot
	var docID, pubKey string
	var parentID, parentProof *string
	var clocksJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT doc_id, pub_key, parent_snapshot_id, parent_snapshot_proof,
		       parent_snapshot_update_clocks, ciphertext, nonce, signature
		FROM snapshots WHERE snapshot_id = $1
	`, snapshotID).Scan(&docID, &pubKey, &parentID, &parentProof, &clocksJSON,
		&snap.Ciphertext, &snap.Nonce, &snap.Signature)
	if err != nil {
		return nil, fmt.Errorf("postgres: load snapshot %s: %w", snapshotID, err)
	}

	var clocks map[string]int
	if err := json.Unmarshal(clocksJSON, &clocks); err != nil {
		return nil, fmt.Errorf("postgres: decode parent_snapshot_update_clocks: %w", err)
	}

	snap.PublicData = message.SnapshotPublicData{
		SnapshotID:                 snapshotID,
		DocID:                      docID,
		PubKey:                     message.PubKey(pubKey),
		ParentSnapshotUpdateClocks: clocks,
	}
	if parentID != nil {
		snap.PublicData.ParentSnapshotID = *parentID
	}
	if parentProof != nil {
		snap.PublicData.ParentSnapshotProof = *parentProof
	}
	return &snap, nil
}

func (s *Store) loadUpdates(ctx context.Context, snapshotID string) ([]message.Update, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, author, clock, ciphertext, nonce, signature, version
		FROM updates WHERE snapshot_id = $1
		ORDER BY version ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load updates for %s: %w", snapshotID, err)
	}
	defer rows.Close()

	var out []message.Update
	for rows.Next() {
		var upd message.Update
		var docID, author string
		var clock, version int
		if err := rows.Scan(&docID, &author, &clock, &upd.Ciphertext, &upd.Nonce, &upd.Signature, &version); err != nil {
			return nil, fmt.Errorf("postgres: scan update: %w", err)
		}
		upd.PublicData = message.UpdatePublicData{
			RefSnapshotID: snapshotID,
			DocID:         docID,
			PubKey:        message.PubKey(author),
			Clock:         clock,
		}
		upd.ServerData = &message.UpdateServerData{Version: version}
		out = append(out, upd)
	}
	return out, rows.Err()
}
