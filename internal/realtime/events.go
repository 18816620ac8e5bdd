// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package realtime

import (
	"github.com/goccy/go-json"
)

// Client-emitted event names. Dispatch over these is closed: anything else
// is answered with an error event rather than silently dropped.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventUserOnline  = "user-online"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
)

// Server-emitted event names.
const (
	EventNewMessage       = "new-message"
	EventUserStatusChange = "user-status-change"
	EventUserTyping       = "user-typing"
	EventUserStopTyping   = "user-stop-typing"
	EventNotification     = "notification"
	EventError            = "error"
)

// Envelope is the wire frame for server-to-client events.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// inboundFrame is the wire frame for client-to-server events. Data stays
// raw until the event name selects a payload type.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendMessagePayload is the client payload for send-message. File fields
// are optional; a message must carry content or a file reference.
type SendMessagePayload struct {
	Content  string `json:"content"`
	RoomID   string `json:"roomId"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// TypingPayload is the client payload for typing / stop-typing. The user
// block is opaque to the gateway and re-broadcast verbatim.
type TypingPayload struct {
	RoomID string          `json:"roomId"`
	User   json.RawMessage `json:"user"`
}

// StatusChangePayload is broadcast globally as user-status-change.
type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// UserRoom returns the personal inbox room key for a user id.
func UserRoom(userID string) string {
	return "user:" + userID
}
