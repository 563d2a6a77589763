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
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id             TEXT PRIMARY KEY,
	active_snapshot_id TEXT
);

CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id                   TEXT PRIMARY KEY,
	doc_id                        TEXT NOT NULL REFERENCES documents(doc_id),
	pub_key                       TEXT NOT NULL,
	parent_snapshot_id            TEXT,
	parent_snapshot_proof         TEXT,
	parent_snapshot_update_clocks JSONB NOT NULL DEFAULT '{}',
	ciphertext                    TEXT NOT NULL,
	nonce                         TEXT NOT NULL,
	signature                     TEXT NOT NULL,
	next_version                  INTEGER NOT NULL DEFAULT 0,
	created_at                    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS snapshots_doc_id_idx ON snapshots(doc_id);

CREATE TABLE IF NOT EXISTS update_clocks (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(snapshot_id),
	author      TEXT NOT NULL,
	clock       INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, author)
);

CREATE TABLE IF NOT EXISTS updates (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(snapshot_id),
	author      TEXT NOT NULL,
	clock       INTEGER NOT NULL,
	doc_id      TEXT NOT NULL,
	ciphertext  TEXT NOT NULL,
	nonce       TEXT NOT NULL,
	signature   TEXT NOT NULL,
	version     INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (snapshot_id, author, clock)
);

CREATE INDEX IF NOT EXISTS updates_snapshot_id_idx ON updates(snapshot_id);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
