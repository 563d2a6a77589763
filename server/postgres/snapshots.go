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

// SaveSnapshot runs the parent-chain and parentSnapshotUpdateClocks
// validation from spec.md §4.3 inside a SERIALIZABLE transaction so a
// concurrent SaveSnapshot/SaveUpdate on the same document can't race the
// read of the document's current active snapshot and clock table.
func (s *Store) SaveSnapshot(ctx context.Context, docID string, snap message.Snapshot) (server.SnapshotOutcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return server.SnapshotOutcome{}, fmt.Errorf("postgres: begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var activeSnapshotID *string
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (doc_id) VALUES ($1)
		ON CONFLICT (doc_id) DO UPDATE SET doc_id = EXCLUDED.doc_id
		RETURNING active_snapshot_id
	`, docID).Scan(&activeSnapshotID)
	if err != nil {
		return server.SnapshotOutcome{}, fmt.Errorf("postgres: lock document row: %w", err)
	}

	pub := snap.PublicData

	if activeSnapshotID == nil {
		if err := s.insertSnapshotTx(ctx, tx, docID, snap); err != nil {
			return server.SnapshotOutcome{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return server.SnapshotOutcome{}, fmt.Errorf("postgres: commit snapshot tx: %w", err)
		}
		return server.SnapshotOutcome{Accepted: true}, nil
	}

	if pub.ParentSnapshotID != *activeSnapshotID {
		current, err := s.loadSnapshotTx(ctx, tx, *activeSnapshotID)
		if err != nil {
			return server.SnapshotOutcome{}, err
		}
		updates, err := s.loadUpdatesTx(ctx, tx, *activeSnapshotID)
		if err != nil {
			return server.SnapshotOutcome{}, err
		}
		return server.SnapshotOutcome{
			Accepted:         false,
			Reason:           "snapshot is outdated: does not extend the document's active snapshot",
			OutdatedSnapshot: current,
			OutdatedUpdates:  updates,
		}, nil
	}

	serverClocks, err := s.loadClocksTx(ctx, tx, *activeSnapshotID)
	if err != nil {
		return server.SnapshotOutcome{}, err
	}

	var missed []message.Update
	for author, recordedClock := range serverClocks {
		claimed, ok := pub.ParentSnapshotUpdateClocks[author]
		if !ok {
			claimed = -1
		}
		if claimed < recordedClock {
			authored, err := s.loadUpdatesForAuthorAboveTx(ctx, tx, *activeSnapshotID, author, claimed)
			if err != nil {
				return server.SnapshotOutcome{}, err
			}
			missed = append(missed, authored...)
		}
	}
	if len(missed) > 0 {
		return server.SnapshotOutcome{
			Accepted:      false,
			Reason:        "snapshot missed updates the server has already accepted",
			MissedUpdates: missed,
		}, nil
	}

	if err := s.insertSnapshotTx(ctx, tx, docID, snap); err != nil {
		return server.SnapshotOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return server.SnapshotOutcome{}, fmt.Errorf("postgres: commit snapshot tx: %w", err)
	}
	return server.SnapshotOutcome{Accepted: true}, nil
}

func (s *Store) insertSnapshotTx(ctx context.Context, tx pgx.Tx, docID string, snap message.Snapshot) error {
	pub := snap.PublicData
	clocksJSON, err := json.Marshal(pub.ParentSnapshotUpdateClocks)
	if err != nil {
		return fmt.Errorf("postgres: encode parent_snapshot_update_clocks: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (snapshot_id, doc_id, pub_key, parent_snapshot_id,
		                       parent_snapshot_proof, parent_snapshot_update_clocks,
		                       ciphertext, nonce, signature)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
	`, pub.SnapshotID, docID, string(pub.PubKey), pub.ParentSnapshotID,
		pub.ParentSnapshotProof, clocksJSON, snap.Ciphertext, snap.Nonce, snap.Signature)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}

	for author, clock := range pub.ParentSnapshotUpdateClocks {
		_, err = tx.Exec(ctx, `
			INSERT INTO update_clocks (snapshot_id, author, clock) VALUES ($1, $2, $3)
		`, pub.SnapshotID, author, clock)
		if err != nil {
			return fmt.Errorf("postgres: seed update_clocks: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `UPDATE documents SET active_snapshot_id = $1 WHERE doc_id = $2`, pub.SnapshotID, docID)
	if err != nil {
		return fmt.Errorf("postgres: set active snapshot: %w", err)
	}
	return nil
}

func (s *Store) loadSnapshotTx(ctx context.Context, tx pgx.Tx, snapshotID string) (*message.Snapshot, error) {
	var snap message.Snapshot
	var docID, pubKey string
	var parentID, parentProof *string
	var clocksJSON []byte

	err := tx.QueryRow(ctx, `
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

func (s *Store) loadUpdatesTx(ctx context.Context, tx pgx.Tx, snapshotID string) ([]message.Update, error) {
	rows, err := tx.Query(ctx, `
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
		upd, err := scanUpdateRow(rows, snapshotID)
		if err != nil {
			return nil, err
		}
		out = append(out, upd)
	}
	return out, rows.Err()
}

func (s *Store) loadUpdatesForAuthorAboveTx(ctx context.Context, tx pgx.Tx, snapshotID, author string, aboveClock int) ([]message.Update, error) {
	rows, err := tx.Query(ctx, `
		SELECT doc_id, author, clock, ciphertext, nonce, signature, version
		FROM updates WHERE snapshot_id = $1 AND author = $2 AND clock > $3
		ORDER BY clock ASC
	`, snapshotID, author, aboveClock)
	if err != nil {
		return nil, fmt.Errorf("postgres: load updates for author %s above clock %d: %w", author, aboveClock, err)
	}
	defer rows.Close()

	var out []message.Update
	for rows.Next() {
		upd, err := scanUpdateRow(rows, snapshotID)
		if err != nil {
			return nil, err
		}
		out = append(out, upd)
	}
	return out, rows.Err()
}

func (s *Store) loadClocksTx(ctx context.Context, tx pgx.Tx, snapshotID string) (map[string]int, error) {
	rows, err := tx.Query(ctx, `SELECT author, clock FROM update_clocks WHERE snapshot_id = $1`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load update_clocks: %w", err)
	}
	defer rows.Close()

	clocks := make(map[string]int)
	for rows.Next() {
		var author string
		var clock int
		if err := rows.Scan(&author, &clock); err != nil {
			return nil, fmt.Errorf("postgres: scan update_clocks: %w", err)
		}
		clocks[author] = clock
	}
	return clocks, rows.Err()
}

// rowScanner is satisfied by both pgx.Rows and the narrower subset this
// package needs, so scanUpdateRow works for both Query call sites above.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUpdateRow(rows rowScanner, snapshotID string) (message.Update, error) {
	var upd message.Update
	var docID, author string
	var clock, version int
	if err := rows.Scan(&docID, &author, &clock, &upd.Ciphertext, &upd.Nonce, &upd.Signature, &version); err != nil {
		return message.Update{}, fmt.Errorf("postgres: scan update: %w", err)
	}
	upd.PublicData = message.UpdatePublicData{
		RefSnapshotID: snapshotID,
		DocID:         docID,
		PubKey:        message.PubKey(author),
		Clock:         clock,
	}
	upd.ServerData = &message.UpdateServerData{Version: version}
	return upd, nil
}
