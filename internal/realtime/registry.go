// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package realtime

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/metrics"
)

// ShutdownReason identifies why the registry is shutting down, for
// observability in logs.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Registry owns every live connection and the room membership maps. It is
// the single injected service object shared by the auth gate, the emit
// bridge and the client event handlers.
//
// All mutation happens under mu. Sends into client buffers happen under at
// least a read lock, and buffers are only ever closed under the write lock
// while the connection is removed from every map, so a send can never race
// a close.
type Registry struct {
	mu sync.RWMutex

	// conns maps connection id to client.
	conns map[string]*Client

	// rooms maps room key to the member connections.
	rooms map[string]map[string]*Client

	// joined maps connection id to the set of rooms it is in, so
	// Unregister can clean every membership without scanning all rooms.
	joined map[string]map[string]struct{}

	// userConns counts live connections per user id, for presence.
	userConns map[string]int

	ready atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		joined:    make(map[string]map[string]struct{}),
		userConns: make(map[string]int),
	}
}

// Register stores an authenticated connection and auto-joins it to its
// personal inbox room. Connection ids are freshly generated uuids, so
// registration has no failure path.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.conns[c.ID] = c
	r.joined[c.ID] = make(map[string]struct{})
	r.userConns[c.UserID]++
	r.joinLocked(c, UserRoom(c.UserID))
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	logging.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID).
		Int("total_connections", total).
		Msg("socket connected")
}

// Unregister removes a connection from every room it joined, closes its
// send buffer and discards it. Safe to call more than once; only the first
// call has any effect. Returns the number of connections the user still has,
// so the caller can decide whether the user went offline.
func (r *Registry) Unregister(c *Client) int {
	r.mu.Lock()
	if _, ok := r.conns[c.ID]; !ok {
		remaining := r.userConns[c.UserID]
		r.mu.Unlock()
		return remaining
	}

	for room := range r.joined[c.ID] {
		r.leaveLocked(c.ID, room)
	}
	delete(r.joined, c.ID)
	delete(r.conns, c.ID)

	r.userConns[c.UserID]--
	remaining := r.userConns[c.UserID]
	if remaining <= 0 {
		delete(r.userConns, c.UserID)
		remaining = 0
	}

	close(c.send)
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	logging.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID).
		Int("total_connections", total).
		Msg("socket disconnected")
	return remaining
}

// Join adds a connection to a room, creating the room if absent.
// Idempotent: joining a room twice is the same as joining once. Joining on
// an unknown connection id is ignored (the connection raced a disconnect).
func (r *Registry) Join(connID, room string) {
	if room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	r.joinLocked(c, room)
}

func (r *Registry) joinLocked(c *Client, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
		metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
	members[c.ID] = c
	r.joined[c.ID][room] = struct{}{}
}

// Leave removes a connection from a room. Leaving a room the connection is
// not in is a no-op, not an error.
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
	if set, ok := r.joined[connID]; ok {
		delete(set, room)
	}
}

func (r *Registry) leaveLocked(connID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
		metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
}

// Deliver fans an event out to every connection currently in the room.
// Membership is snapshotted at call time; a connection that joins mid-fanout
// does not receive the event. Delivery is best-effort and at-most-once per
// client: members whose send buffer is full or closing are skipped without
// aborting delivery to the rest. Delivering to an empty or unknown room is
// a no-op.
func (r *Registry) Deliver(room, event string, payload interface{}) {
	r.deliver(room, "", event, payload)
}

// DeliverExcept is Deliver minus one connection, used for typing indicators
// so the typist does not get an echo.
func (r *Registry) DeliverExcept(room, exceptConnID, event string, payload interface{}) {
	r.deliver(room, exceptConnID, event, payload)
}

func (r *Registry) deliver(room, exceptConnID, event string, payload interface{}) {
	env := Envelope{Event: event, Data: payload}

	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	for id, c := range members {
		if id == exceptConnID {
			continue
		}
		r.sendLocked(c, env, event)
	}
}

// Broadcast sends an event to every live connection, regardless of rooms.
// Used for platform-wide presence changes.
func (r *Registry) Broadcast(event string, payload interface{}) {
	env := Envelope{Event: event, Data: payload}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conns {
		r.sendLocked(c, env, event)
	}
}

// SendTo delivers an event to a single connection. Returns false when the
// connection is gone or its buffer was full.
func (r *Registry) SendTo(connID, event string, payload interface{}) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	return r.sendLocked(c, Envelope{Event: event, Data: payload}, event)
}

// SendError reports a handler failure to one connection. The message is
// generic on purpose: internal error detail never leaks to clients.
func (r *Registry) SendError(connID, message string) {
	r.SendTo(connID, EventError, message)
}

// sendLocked enqueues an envelope without blocking. Caller holds mu (read
// or write); close(c.send) only ever happens under the write lock after the
// client leaves the maps, so this send cannot hit a closed channel.
func (r *Registry) sendLocked(c *Client, env Envelope, event string) bool {
	select {
	case c.send <- env:
		metrics.EventsDelivered.WithLabelValues(event).Inc()
		return true
	default:
		metrics.DeliveriesSkipped.Inc()
		logging.Debug().
			Str("conn_id", c.ID).
			Str("event", event).
			Msg("send buffer full, dropping event")
		return false
	}
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// MemberCount returns the number of connections in a room.
func (r *Registry) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// InRoom reports whether a connection is currently a member of a room.
func (r *Registry) InRoom(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// UserConnectionCount returns how many live connections a user has.
func (r *Registry) UserConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userConns[userID]
}

// Ready reports whether the registry is being served (used by the readiness
// probe).
func (r *Registry) Ready() bool {
	return r.ready.Load()
}

// RunWithContext serves the registry until the context is canceled, then
// closes every connection so the transport layer unwinds and nothing is
// left referencing dead sockets. Designed for suture supervision; returns
// ctx.Err() on shutdown.
func (r *Registry) RunWithContext(ctx context.Context) error {
	r.ready.Store(true)
	<-ctx.Done()
	r.ready.Store(false)

	closed := r.closeAll()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "registry").
		Str("reason", string(reason)).
		Int("connections_closed", closed).
		Msg("registry stopped")

	return ctx.Err()
}

// closeAll closes every connection in id order and resets all state.
// Closing the send buffers makes each writePump write a close frame and
// tear the socket down, which in turn drives the usual unregister path for
// any stragglers.
func (r *Registry) closeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := r.conns[id]
		for room := range r.joined[id] {
			r.leaveLocked(id, room)
		}
		delete(r.joined, id)
		delete(r.conns, id)
		close(c.send)
	}
	r.userConns = make(map[string]int)

	metrics.ConnectionsActive.Set(0)
	return len(ids)
}
