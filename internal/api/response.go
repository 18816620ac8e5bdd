// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
)

// EmitResponse is the wire shape for emit bridge responses. Callers (the
// web application's server actions) branch on Success and surface Error.
type EmitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	UptimeSecs  int64  `json:"uptimeSeconds"`
	Version     string `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func writeEmitOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, EmitResponse{Success: true})
}

func writeEmitError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, EmitResponse{Success: false, Error: msg})
}
