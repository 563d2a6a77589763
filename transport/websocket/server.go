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

package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the narrow per-connection handle Handler implementations use to
// push frames back to one client.
type Conn interface {
	Send(frame []byte) error
	DocID() string
}

// Handler processes one inbound frame from one connection. It is called
// synchronously from that connection's read loop; long-running work should
// be handed off.
type Handler func(ctx context.Context, conn Conn, docID string, raw []byte)

// OnConnect/OnDisconnect let the server wire a connection into a document's
// fan-out registry the moment it is known (the docID arrives as the "docId"
// query parameter on the upgrade request, per spec.md §6).
type OnConnect func(conn Conn, docID string)
type OnDisconnect func(conn Conn, docID string)

// Server accepts websocket upgrades and dispatches frames per document.
// Unlike the teacher's request/response WSServer, there is no per-message
// response: the handler pushes replies asynchronously via Conn.Send, and
// broadcast fan-out to other clients on the same document is the caller's
// responsibility (spec.md §5).
type Server struct {
	handler      Handler
	onConnect    OnConnect
	onDisconnect OnDisconnect
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu    sync.RWMutex
	conns map[*serverConn]bool
}

// NewServer creates a websocket server that calls handler for every inbound
// frame and onConnect/onDisconnect as connections join and leave.
func NewServer(handler Handler, onConnect OnConnect, onDisconnect OnDisconnect) *Server {
	return &Server{
		handler:      handler,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		conns:        make(map[*serverConn]bool),
	}
}

type serverConn struct {
	conn  *websocket.Conn
	docID string
	mu    sync.Mutex
	wt    time.Duration
}

func (c *serverConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.wt)); err != nil {
		return fmt.Errorf("websocket: set write deadline: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *serverConn) DocID() string { return c.docID }

// Handler returns an http.Handler that upgrades requests to websocket
// connections scoped to the "docId" query parameter.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		docID := r.URL.Query().Get("docId")
		if docID == "" {
			http.Error(w, "docId query parameter is required", http.StatusBadRequest)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		sc := &serverConn{conn: conn, docID: docID, wt: s.writeTimeout}
		s.addConn(sc)
		if s.onConnect != nil {
			s.onConnect(sc, docID)
		}
		defer func() {
			s.removeConn(sc)
			if s.onDisconnect != nil {
				s.onDisconnect(sc, docID)
			}
			_ = conn.Close()
		}()

		s.readLoop(r.Context(), sc)
	})
}

func (s *Server) readLoop(ctx context.Context, sc *serverConn) {
	for {
		if err := sc.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return
		}
		_, raw, err := sc.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handler(ctx, sc, sc.docID, raw)
	}
}

func (s *Server) addConn(c *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = true
}

func (s *Server) removeConn(c *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// ConnectionCount returns the number of currently upgraded connections,
// across all documents.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	s.conns = make(map[*serverConn]bool)
	return nil
}
