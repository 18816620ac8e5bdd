// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

/*
Package realtime implements the connection registry, room router and client
event handlers - the core of the gateway.

Key components:

  - Registry: owns every live connection and the room membership maps. One
    instance is constructed at process start and injected into the auth
    gate, emit bridge and event handlers; there are no package globals.
  - Client: one websocket connection with read/write goroutines.
  - Handlers: typed dispatch for client-emitted events (join-room,
    leave-room, send-message, typing, stop-typing, user-online).

Rooms are string keys. Every authenticated connection auto-joins its
personal inbox room "user:<userId>"; chat rooms are joined explicitly with
join-room. Join is idempotent, leaving a room you are not in is a no-op and
delivery to an empty room delivers to nobody and fails nothing.

Delivery is best-effort and at-most-once per connected client: Deliver
snapshots the membership at call time and performs a non-blocking send to
each member's buffer. Clients whose buffer is full or already closing are
skipped without aborting delivery to the rest; there is no acknowledgement,
queueing or replay. A client that misses an event reconciles through a
normal fetch against the web application's CRUD API, which remains the
authoritative state. Do not add delivery guarantees here - nothing else in
the platform (no message ids on events, no replay) can support them.

Each client has two goroutines:

  - readPump: reads frames, enforces the read limit, pong deadline and a
    per-connection rate limit, then dispatches to Handlers
  - writePump: drains the send buffer, pings on an interval and writes the
    close frame when the registry closes the buffer

Registry.RunWithContext blocks until the context is canceled and then closes
every connection, which makes the registry directly supervisable by suture.
*/
package realtime
