// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package realtime

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB; chat frames are small, files go through the upload service

	// sendBufferSize bounds the per-connection outbound queue. A full
	// buffer means the client is too slow and events are dropped for it.
	sendBufferSize = 256

	// inboundRate / inboundBurst throttle client-emitted events per
	// connection. Typing indicators are the chattiest legitimate source.
	inboundRate  = 20
	inboundBurst = 40
)

// Client is one live socket connection with its authenticated identity.
// Room membership for the connection is tracked by the Registry; the client
// itself only moves bytes.
type Client struct {
	// ID is the server-generated connection id.
	ID string

	// UserID is the identity resolved by the auth gate before the
	// connection was registered. Every handler trusts it.
	UserID string

	conn     *websocket.Conn
	send     chan Envelope
	reg      *Registry
	handlers *Handlers
	limiter  *rate.Limiter
}

// NewClient creates a client for an upgraded, authenticated connection.
func NewClient(reg *Registry, handlers *Handlers, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		conn:     conn,
		send:     make(chan Envelope, sendBufferSize),
		reg:      reg,
		handlers: handlers,
		limiter:  rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads frames from the socket and dispatches them to the event
// handlers. It exits on any read error - explicit close, timeout and
// network drop all land here - and runs the one-and-only disconnect path.
func (c *Client) readPump() {
	defer func() {
		c.handlers.Disconnected(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Str("conn_id", c.ID).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("conn_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}

		if !c.limiter.Allow() {
			logging.Warn().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("client exceeded event rate limit")
			c.reg.SendError(c.ID, "rate limit exceeded")
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reg.SendError(c.ID, "malformed event frame")
			continue
		}

		metrics.EventsReceived.WithLabelValues(frame.Event).Inc()
		c.handlers.Dispatch(c, frame.Event, frame.Data)
	}
}

// writePump drains the send buffer onto the socket and keeps the
// connection alive with pings. When the registry closes the buffer it
// writes a close frame and tears the socket down.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Str("conn_id", c.ID).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// Registry closed the buffer (unregister or shutdown).
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				logging.Debug().Err(err).Str("conn_id", c.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
