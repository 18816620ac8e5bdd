// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package notify is a small client for the gateway's emit bridge, for Go
// services that want to push realtime events to connected users.
//
// Delivery is fire-and-forget by design: a user who is offline simply does
// not receive the event, and a gateway outage must never fail the business
// operation that triggered the notification. Notify therefore swallows and
// logs every failure instead of returning it.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
)

const defaultTimeout = 3 * time.Second

// Notifier posts events to a gateway's emit bridge.
type Notifier struct {
	baseURL       string
	internalToken string
	http          *http.Client
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithInternalToken sets the X-Internal-Token header for gateways that
// require it.
func WithInternalToken(token string) Option {
	return func(n *Notifier) { n.internalToken = token }
}

// WithTimeout overrides the default 3 second request timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.http.Timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.http = c }
}

// New creates a Notifier for the gateway at baseURL,
// e.g. http://localhost:4000.
func New(baseURL string, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyUser sends an event to one user's personal inbox room.
func (n *Notifier) NotifyUser(ctx context.Context, userID, event string, payload interface{}) {
	n.Notify(ctx, "user:"+userID, event, payload)
}

// Notify sends an event to a room. Failures of any kind (marshaling,
// transport, non-200 response) are logged at debug level and swallowed.
func (n *Notifier) Notify(ctx context.Context, room, event string, payload interface{}) {
	body, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"room":    room,
		"payload": payload,
	})
	if err != nil {
		logging.Debug().Err(err).Str("room", room).Str("event", event).Msg("notify: marshal failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/emit", bytes.NewReader(body))
	if err != nil {
		logging.Debug().Err(err).Str("room", room).Str("event", event).Msg("notify: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.internalToken != "" {
		req.Header.Set("X-Internal-Token", n.internalToken)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		logging.Debug().Err(err).Str("room", room).Str("event", event).Msg("notify: emit failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Debug().
			Err(fmt.Errorf("emit returned status %d", resp.StatusCode)).
			Str("room", room).
			Str("event", event).
			Msg("notify: emit rejected")
	}
}
