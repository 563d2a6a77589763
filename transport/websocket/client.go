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

// Package websocket implements the client and server halves of secsync's
// transport: a persistent, bidirectional, push-style websocket connection
// feeding frames into a sync.Actor rather than a request/response RPC
// channel.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	secsync "github.com/secsync-go/secsync/sync"
)

// Client drives one websocket connection on behalf of a sync.Actor: it
// dials, translates inbound frames into actor events, relays outbound
// frames the actor sends, and reconnects with backoff on disconnect
// (spec.md §5).
type Client struct {
	url   string
	actor *secsync.Actor

	mu   sync.Mutex
	conn *websocket.Conn

	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a websocket client that will feed url's frames into
// actor.
func NewClient(url string, actor *secsync.Actor) *Client {
	return &Client{
		url:          url,
		actor:        actor,
		dialTimeout:  secsync.OpenTimeout,
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		closed:       make(chan struct{}),
	}
}

// Run dials and reads until ctx is canceled or Close is called, reconnecting
// with the actor's backoff schedule after every disconnect (spec.md §5).
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		default:
		}

		if err := c.dial(ctx); err != nil {
			if derr := c.actor.Dispatch(syncEvent(secsync.EventWebsocketOpenTimedOut)); derr != nil {
				return derr
			}
			if !c.sleepBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		if err := c.actor.Dispatch(syncEvent(secsync.EventWebsocketConnected)); err != nil {
			return err
		}

		c.readLoop(ctx)

		if err := c.actor.Dispatch(syncEvent(secsync.EventWebsocketDisconnected)); err != nil {
			return err
		}

		if !c.sleepBackoff(ctx) {
			return ctx.Err()
		}
	}
}

func syncEvent(kind secsync.EventKind) secsync.Event { return secsync.Event{Kind: kind} }

func (c *Client) sleepBackoff(ctx context.Context) bool {
	_, attempts := c.actor.ReconnectDelay()
	select {
	case <-time.After(secsync.ReconnectDelay(attempts)):
		return true
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
}

func (c *Client) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	dialer := &websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.actor.SetTransport(c)
	return nil
}

// Send implements sync.Transport by writing frame as a single websocket
// text message.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("websocket: not connected")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("websocket: set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if err := c.actor.Dispatch(secsync.Event{Kind: secsync.EventIncomingFrame, Raw: raw}); err != nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Close stops Run's reconnect loop and closes any open connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}
