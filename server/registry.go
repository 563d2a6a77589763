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
	"sync"

	"github.com/google/uuid"

	"github.com/secsync-go/secsync/transport/websocket"
)

// registry tracks the set of live connections subscribed to each document,
// so Hub can broadcast a frame to every connection on a document except the
// one that caused it (spec.md §5 "broadcast-except-author"). It also hands
// out a correlation id per connection for structured logging.
type registry struct {
	mu    sync.RWMutex
	byDoc map[string]map[websocket.Conn]bool
	ids   map[websocket.Conn]string
}

func newRegistry() *registry {
	return &registry{
		byDoc: make(map[string]map[websocket.Conn]bool),
		ids:   make(map[websocket.Conn]string),
	}
}

func (r *registry) add(docID string, conn websocket.Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byDoc[docID]
	if !ok {
		conns = make(map[websocket.Conn]bool)
		r.byDoc[docID] = conns
	}
	conns[conn] = true

	id, ok := r.ids[conn]
	if !ok {
		id = uuid.NewString()
		r.ids[conn] = id
	}
	return id
}

// remove drops conn from docID's connection set and returns the correlation
// id it was registered under, if any.
func (r *registry) remove(docID string, conn websocket.Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.ids[conn]
	conns, ok := r.byDoc[docID]
	if !ok {
		return id
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.byDoc, docID)
	}
	delete(r.ids, conn)
	return id
}

// connections returns a snapshot of the connections currently subscribed to
// docID, safe to range over after the lock is released.
func (r *registry) connections(docID string) []websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byDoc[docID]
	out := make([]websocket.Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// broadcastExcept sends raw to every connection on docID other than except.
// Send errors are swallowed here; a connection that can't be written to will
// be evicted by its own read loop returning and OnDisconnect firing.
func (r *registry) broadcastExcept(docID string, except websocket.Conn, raw []byte) {
	for _, c := range r.connections(docID) {
		if c == except {
			continue
		}
		_ = c.Send(raw)
	}
}

// documentCount reports how many documents currently have at least one
// subscriber, for health/metrics reporting.
func (r *registry) documentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byDoc)
}
