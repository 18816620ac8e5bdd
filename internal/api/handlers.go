// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package api exposes the gateway's HTTP surface: the websocket handshake
// endpoint, the internal emit bridge, health probes and Prometheus metrics.
package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Yab112/communicationplatformapp-sub000/internal/auth"
	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/metrics"
	"github.com/Yab112/communicationplatformapp-sub000/internal/realtime"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// internalTokenHeader authenticates emit bridge callers in deployments
// where the gateway port is reachable beyond loopback.
const internalTokenHeader = "X-Internal-Token"

// maxEmitBodySize bounds emit request bodies. Notification payloads are
// small JSON objects; anything larger is a bug or abuse.
const maxEmitBodySize = 256 * 1024

// EmitRequest is the emit bridge request body. All three fields must be
// present; payload is opaque to the gateway and forwarded verbatim to room
// members (an explicit null is a valid payload, an absent field is not).
type EmitRequest struct {
	Event   string          `json:"event" validate:"required,max=128"`
	Room    string          `json:"room" validate:"required,max=256"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// Handlers carries the dependencies of the HTTP endpoints.
type Handlers struct {
	cfg      *config.Config
	reg      *realtime.Registry
	evh      *realtime.Handlers
	verifier *auth.TokenVerifier
	validate *validator.Validate
	upgrader websocket.Upgrader
	started  time.Time
}

// NewHandlers builds the endpoint handler set. The upgrader's origin check
// enforces the configured CORS origin list; requests without an Origin
// header (server-side clients, probes) are allowed through since the check
// only defends against cross-site browser abuse.
func NewHandlers(cfg *config.Config, reg *realtime.Registry, evh *realtime.Handlers, verifier *auth.TokenVerifier) *Handlers {
	allowed := make(map[string]struct{}, len(cfg.Security.CORSOrigins))
	wildcard := false
	for _, o := range cfg.Security.CORSOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}

	return &Handlers{
		cfg:      cfg,
		reg:      reg,
		evh:      evh,
		verifier: verifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || wildcard {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		started: time.Now(),
	}
}

// WebSocket handles GET /ws. Authentication happens before the upgrade:
// a missing or invalid credential is answered with a plain 401 and the
// socket never opens.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	credential := auth.CredentialFromRequest(r)
	userID, err := h.verifier.Verify(credential)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("socket handshake rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.reg, h.evh, conn, userID)
	h.reg.Register(client)
	client.Start()
}

// Emit handles POST /api/emit, the trusted ingress used by the web
// application to push notifications into rooms. Delivery is fire-and-forget:
// a 200 means the event was accepted and routed, not that any client
// received it.
func (h *Handlers) Emit(w http.ResponseWriter, r *http.Request) {
	if token := h.cfg.Bridge.InternalToken; token != "" {
		presented := r.Header.Get(internalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			metrics.EmitRequests.WithLabelValues("unauthorized").Inc()
			writeEmitError(w, http.StatusUnauthorized, "invalid internal token")
			return
		}
	}

	var req EmitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxEmitBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.EmitRequests.WithLabelValues("invalid").Inc()
		writeEmitError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		metrics.EmitRequests.WithLabelValues("invalid").Inc()
		writeEmitError(w, http.StatusBadRequest, "event, room and payload are required")
		return
	}

	h.reg.Deliver(req.Room, req.Event, req.Payload)
	metrics.EmitRequests.WithLabelValues("delivered").Inc()

	logging.Debug().
		Str("event", req.Event).
		Str("room", req.Room).
		Int("members", h.reg.MemberCount(req.Room)).
		Msg("emit routed")

	writeEmitOK(w)
}

// Health handles GET /api/health with live gauge values.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: h.reg.ConnectionCount(),
		Rooms:       h.reg.RoomCount(),
		UptimeSecs:  int64(time.Since(h.started).Seconds()),
		Version:     Version,
	})
}

// HealthLive handles GET /api/health/live. Process is up.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/health/ready. Ready once the registry
// service is running, not-ready again during drain so load balancers stop
// routing new handshakes.
func (h *Handlers) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if !h.reg.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
