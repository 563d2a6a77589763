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
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/secsync-go/secsync/message"
	"github.com/secsync-go/secsync/server"
)

// SaveUpdate validates upd's refSnapshotId and per-author clock against the
// document's current state and, if valid, persists it and assigns the next
// per-snapshot monotonic version, all inside a SERIALIZABLE transaction
// (spec.md §4.3, §5).
func (s *Store) SaveUpdate(ctx context.Context, docID string, upd message.Update) (server.UpdateOutcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var activeSnapshotID *string
	err = tx.QueryRow(ctx, `SELECT active_snapshot_id FROM documents WHERE doc_id = $1`, docID).Scan(&activeSnapshotID)
	if err == pgx.ErrNoRows || activeSnapshotID == nil {
		return server.UpdateOutcome{Accepted: false, Reason: "document not found"}, nil
	}
	if err != nil {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: lock document row: %w", err)
	}

	pub := upd.PublicData
	if pub.RefSnapshotID != *activeSnapshotID {
		return server.UpdateOutcome{Accepted: false, Reason: "refSnapshotId is not the document's active snapshot"}, nil
	}

	author := string(pub.PubKey)
	var stored int
	var version int
	err = tx.QueryRow(ctx,
		`SELECT clock FROM update_clocks WHERE snapshot_id = $1 AND author = $2 FOR UPDATE`,
		*activeSnapshotID, author,
	).Scan(&stored)
	known := err == nil
	if err != nil && err != pgx.ErrNoRows {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: lock update_clocks row: %w", err)
	}

	expected := 0
	if known {
		expected = stored + 1
	}

	if pub.Clock != expected {
		if known && pub.Clock == stored {
			var ciphertext string
			err = tx.QueryRow(ctx, `
				SELECT ciphertext, version FROM updates
				WHERE snapshot_id = $1 AND author = $2 AND clock = $3
			`, *activeSnapshotID, author, pub.Clock).Scan(&ciphertext, &version)
			if err == nil && ciphertext == upd.Ciphertext {
				return server.UpdateOutcome{Accepted: true, Idempotent: true, Version: version}, nil
			}
		}
		return server.UpdateOutcome{Accepted: false, Reason: "clock is not exactly the author's next expected value"}, nil
	}

	err = tx.QueryRow(ctx, `
		UPDATE snapshots SET next_version = next_version + 1
		WHERE snapshot_id = $1
		RETURNING next_version - 1
	`, *activeSnapshotID).Scan(&version)
	if err != nil {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: allocate version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO updates (snapshot_id, author, clock, doc_id, ciphertext, nonce, signature, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, *activeSnapshotID, author, pub.Clock, pub.DocID, upd.Ciphertext, upd.Nonce, upd.Signature, version)
	if err != nil {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: insert update: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO update_clocks (snapshot_id, author, clock) VALUES ($1, $2, $3)
		ON CONFLICT (snapshot_id, author) DO UPDATE SET clock = EXCLUDED.clock
	`, *activeSnapshotID, author, pub.Clock)
	if err != nil {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: upsert update_clocks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return server.UpdateOutcome{}, fmt.Errorf("postgres: commit update tx: %w", err)
	}
	return server.UpdateOutcome{Accepted: true, Version: version}, nil
}
