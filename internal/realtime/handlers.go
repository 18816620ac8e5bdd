// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/store"
)

// Handlers reacts to client-emitted events. Store failures are contained to
// the originating connection: the client gets a generic error event and
// every other connection keeps working. Nothing in here may panic the
// process or broadcast partial state.
type Handlers struct {
	reg          *Registry
	store        store.MessageStore
	storeTimeout time.Duration
}

// NewHandlers wires the event handlers to the registry and the external
// store collaborator.
func NewHandlers(reg *Registry, st store.MessageStore, storeTimeout time.Duration) *Handlers {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Handlers{reg: reg, store: st, storeTimeout: storeTimeout}
}

// Dispatch routes one inbound frame to its typed handler. The event set is
// closed; unknown names get an error event back instead of a silent drop.
func (h *Handlers) Dispatch(c *Client, event string, data json.RawMessage) {
	switch event {
	case EventJoinRoom:
		h.handleJoinRoom(c, data)
	case EventLeaveRoom:
		h.handleLeaveRoom(c, data)
	case EventSendMessage:
		h.handleSendMessage(c, data)
	case EventTyping:
		h.handleTyping(c, data, EventUserTyping)
	case EventStopTyping:
		h.handleTyping(c, data, EventUserStopTyping)
	case EventUserOnline:
		h.handleUserOnline(c, data)
	default:
		h.reg.SendError(c.ID, "unknown event: "+event)
	}
}

func (h *Handlers) handleJoinRoom(c *Client, data json.RawMessage) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		h.reg.SendError(c.ID, "join-room requires a room id")
		return
	}
	h.reg.Join(c.ID, room)
	logging.Debug().Str("conn_id", c.ID).Str("room", room).Msg("joined room")
}

func (h *Handlers) handleLeaveRoom(c *Client, data json.RawMessage) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		h.reg.SendError(c.ID, "leave-room requires a room id")
		return
	}
	h.reg.Leave(c.ID, room)
	logging.Debug().Str("conn_id", c.ID).Str("room", room).Msg("left room")
}

// handleSendMessage persists the message through the external store, then
// fans the stored record out to the room. On store failure only the sender
// hears about it - a half-persisted message is never broadcast.
func (h *Handlers) handleSendMessage(c *Client, data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.reg.SendError(c.ID, "malformed send-message payload")
		return
	}
	if p.RoomID == "" {
		h.reg.SendError(c.ID, "send-message requires a room id")
		return
	}
	if p.Content == "" && p.FileURL == "" {
		h.reg.SendError(c.ID, "message is empty")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	stored, err := h.store.CreateMessage(ctx, store.NewMessage{
		SenderID: c.UserID,
		RoomID:   p.RoomID,
		Content:  p.Content,
		FileURL:  p.FileURL,
		FileName: p.FileName,
		FileType: p.FileType,
		FileSize: p.FileSize,
	})
	if err != nil {
		logging.Error().Err(err).
			Str("conn_id", c.ID).
			Str("room", p.RoomID).
			Msg("failed to persist message")
		h.reg.SendError(c.ID, "failed to send message")
		return
	}

	h.reg.Deliver(p.RoomID, EventNewMessage, stored)
}

// handleTyping re-broadcasts a typing indicator to the room, excluding the
// typist. No persistence; the user block passes through opaquely.
func (h *Handlers) handleTyping(c *Client, data json.RawMessage, outEvent string) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		h.reg.SendError(c.ID, "typing events require a room id")
		return
	}
	h.reg.DeliverExcept(p.RoomID, c.ID, outEvent, p.User)
}

// handleUserOnline validates that the claimed identity matches the
// authenticated one, updates presence in the store and broadcasts the
// status change platform-wide. A mismatched claim gets an error event and
// mutates nothing.
func (h *Handlers) handleUserOnline(c *Client, data json.RawMessage) {
	var claimed string
	if err := json.Unmarshal(data, &claimed); err != nil || claimed == "" {
		h.reg.SendError(c.ID, "user-online requires a user id")
		return
	}
	if claimed != c.UserID {
		logging.Warn().
			Str("conn_id", c.ID).
			Str("authenticated", c.UserID).
			Str("claimed", claimed).
			Msg("presence update rejected for identity mismatch")
		h.reg.SendError(c.ID, "not authorized to update presence for another user")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	if err := h.store.SetUserStatus(ctx, c.UserID, "online"); err != nil {
		logging.Error().Err(err).Str("user_id", c.UserID).Msg("failed to update presence status")
		h.reg.SendError(c.ID, "failed to update presence")
		return
	}

	h.reg.Broadcast(EventUserStatusChange, StatusChangePayload{UserID: c.UserID, Status: "online"})
}

// Disconnected runs the single disconnect path for a connection: clean the
// registry, and when that was the user's last connection, flip them offline.
// The offline broadcast happens even if the store write fails - connected
// clients care about live state, and the store reconciles on next fetch.
func (h *Handlers) Disconnected(c *Client) {
	remaining := h.reg.Unregister(c)
	if remaining > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	if err := h.store.SetUserStatus(ctx, c.UserID, "offline"); err != nil {
		logging.Debug().Err(err).Str("user_id", c.UserID).Msg("failed to persist offline status")
	}
	h.reg.Broadcast(EventUserStatusChange, StatusChangePayload{UserID: c.UserID, Status: "offline"})
}
