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
	"errors"

	"github.com/secsync-go/secsync/internal/logger"
	"github.com/secsync-go/secsync/message"
	"github.com/secsync-go/secsync/transport/websocket"
)

// Metrics is the subset of internal/metrics.Collector the hub reports
// against. It is an interface so tests can run without a real registry.
type Metrics interface {
	SnapshotAccepted(docID string)
	SnapshotRejected(docID, reason string)
	UpdateAccepted(docID string)
	UpdateRejected(docID, reason string)
	EphemeralMessageRelayed(docID string)
	ConnectionOpened(docID string)
	ConnectionClosed(docID string)
}

type noopMetrics struct{}

func (noopMetrics) SnapshotAccepted(string)          {}
func (noopMetrics) SnapshotRejected(string, string)  {}
func (noopMetrics) UpdateAccepted(string)            {}
func (noopMetrics) UpdateRejected(string, string)    {}
func (noopMetrics) EphemeralMessageRelayed(string)   {}
func (noopMetrics) ConnectionOpened(string)          {}
func (noopMetrics) ConnectionClosed(string)           {}

// LenientMode, when true, makes Hub create a document on first contact
// instead of replying documentNotFound (spec.md §4.3).
type HubConfig struct {
	Store       Store
	Metrics     Metrics
	Log         logger.Logger
	LenientMode bool
}

// Hub is the server core: it owns the per-document connection registry, and
// implements the accept/reject/broadcast rules of spec.md §4.3 and §5 on
// top of a pluggable Store. It is driven by transport/websocket.Server via
// its Handler/OnConnect/OnDisconnect methods.
type Hub struct {
	store   Store
	metrics Metrics
	log     logger.Logger
	lenient bool

	reg *registry
}

// NewHub builds a Hub. If cfg.Metrics or cfg.Log is nil, a no-op
// implementation is used so callers that don't care about observability
// don't have to construct one.
func NewHub(cfg HubConfig) *Hub {
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Hub{
		store:   cfg.Store,
		metrics: m,
		log:     log,
		lenient: cfg.LenientMode,
		reg:     newRegistry(),
	}
}

// OnConnect loads the document (creating it in lenient mode if absent) and
// sends the initial "document" frame (spec.md §4.2 connecting -> connected).
func (h *Hub) OnConnect(conn websocket.Conn, docID string) {
	ctx := logger.ContextWithDocID(context.Background(), docID)
	log := h.log.WithContext(ctx)
	connID := h.reg.add(docID, conn)
	h.metrics.ConnectionOpened(docID)
	log.Info("connection opened", logger.String("connId", connID))

	if _, err := h.store.GetDocument(ctx, docID); err != nil {
		if !errors.Is(err, ErrDocumentNotFound) {
			h.sendError(conn, docID, "failed to load document")
			return
		}
		if !h.lenient {
			h.send(conn, Frame{Type: FrameDocumentNotFound, DocID: docID})
			return
		}
		if _, err := h.store.CreateDocument(ctx, docID); err != nil {
			h.sendError(conn, docID, "failed to create document")
			return
		}
	}

	snap, updates, err := h.store.LoadDocument(ctx, docID)
	if err != nil {
		h.sendError(conn, docID, "failed to load document")
		return
	}
	h.send(conn, Frame{Type: FrameDocument, DocID: docID, Snapshot: snap, Updates: updates})
}

// OnDisconnect removes conn from the registry.
func (h *Hub) OnDisconnect(conn websocket.Conn, docID string) {
	connID := h.reg.remove(docID, conn)
	h.metrics.ConnectionClosed(docID)
	log := h.log.WithContext(logger.ContextWithDocID(context.Background(), docID))
	log.Info("connection closed", logger.String("connId", connID))
}

// Handle processes one inbound frame from conn (spec.md §6).
func (h *Hub) Handle(ctx context.Context, conn websocket.Conn, docID string, raw []byte) {
	ctx = logger.ContextWithDocID(ctx, docID)
	log := h.log.WithContext(ctx)
	f, err := DecodeFrame(raw)
	if err != nil {
		log.Warn("discarding malformed frame", logger.Error(err))
		return
	}

	switch f.Type {
	case FrameSnapshot:
		h.handleSnapshot(ctx, conn, docID, f)
	case FrameUpdate:
		h.handleUpdate(ctx, conn, docID, f)
	case FrameEphemeral:
		h.handleEphemeral(conn, docID, f)
	default:
		log.Warn("unexpected frame type from client", logger.String("type", string(f.Type)))
	}
}

func (h *Hub) handleSnapshot(ctx context.Context, conn websocket.Conn, docID string, f Frame) {
	if f.SnapshotMsg == nil {
		return
	}
	snap := *f.SnapshotMsg

	outcome, err := h.store.SaveSnapshot(ctx, docID, snap)
	if err != nil {
		h.sendError(conn, docID, "failed to save snapshot")
		return
	}
	if !outcome.Accepted {
		h.metrics.SnapshotRejected(docID, outcome.Reason)
		h.send(conn, Frame{
			Type:       FrameSnapshotSaveFail,
			DocID:      docID,
			SnapshotID: snap.PublicData.SnapshotID,
			Reason:     outcome.Reason,
			Snapshot:   outcome.OutdatedSnapshot,
			Updates:    append(outcome.OutdatedUpdates, outcome.MissedUpdates...),
		})
		return
	}

	h.metrics.SnapshotAccepted(docID)
	h.send(conn, Frame{Type: FrameSnapshotSaved, DocID: docID, SnapshotID: snap.PublicData.SnapshotID})
	h.reg.broadcastExcept(docID, conn, mustEncode(Frame{Type: FrameSnapshot, DocID: docID, SnapshotMsg: &snap}))
}

func (h *Hub) handleUpdate(ctx context.Context, conn websocket.Conn, docID string, f Frame) {
	if f.UpdateMsg == nil {
		return
	}
	upd := *f.UpdateMsg

	outcome, err := h.store.SaveUpdate(ctx, docID, upd)
	if err != nil {
		h.sendError(conn, docID, "failed to save update")
		return
	}
	if !outcome.Accepted {
		h.metrics.UpdateRejected(docID, outcome.Reason)
		h.send(conn, Frame{
			Type:       FrameUpdateSaveFail,
			DocID:      docID,
			SnapshotID: upd.PublicData.RefSnapshotID,
			Clock:      upd.PublicData.Clock,
			Reason:     outcome.Reason,
		})
		return
	}

	h.metrics.UpdateAccepted(docID)
	upd.ServerData = &message.UpdateServerData{Version: outcome.Version}
	h.send(conn, Frame{
		Type:          FrameUpdateSaved,
		DocID:         docID,
		SnapshotID:    upd.PublicData.RefSnapshotID,
		Clock:         upd.PublicData.Clock,
		ServerVersion: outcome.Version,
	})
	if !outcome.Idempotent {
		h.reg.broadcastExcept(docID, conn, mustEncode(Frame{Type: FrameUpdate, DocID: docID, UpdateMsg: &upd}))
	}
}

// handleEphemeral fans f out verbatim: the server never persists ephemeral
// messages and validates nothing beyond the envelope's docId (spec.md §4.3).
func (h *Hub) handleEphemeral(conn websocket.Conn, docID string, f Frame) {
	if f.EphemeralMsg == nil {
		return
	}
	if f.EphemeralMsg.PublicData.DocID != docID {
		h.sendError(conn, docID, "ephemeral message docId does not match connection")
		return
	}
	h.metrics.EphemeralMessageRelayed(docID)
	h.reg.broadcastExcept(docID, conn, mustEncode(Frame{Type: FrameEphemeral, DocID: docID, EphemeralMsg: f.EphemeralMsg}))
}

func (h *Hub) send(conn websocket.Conn, f Frame) {
	raw, err := f.Encode()
	if err != nil {
		h.log.Error("failed to encode outgoing frame", logger.Error(err))
		return
	}
	if err := conn.Send(raw); err != nil {
		h.log.Warn("failed to send frame to connection", logger.Error(err))
	}
}

func (h *Hub) sendError(conn websocket.Conn, docID, reason string) {
	h.send(conn, Frame{Type: FrameDocumentError, DocID: docID, Reason: reason})
}

func mustEncode(f Frame) []byte {
	raw, err := f.Encode()
	if err != nil {
		// Frame only holds JSON-serializable fields produced by this
		// package; a marshal failure here means a programming error.
		panic(err)
	}
	return raw
}
