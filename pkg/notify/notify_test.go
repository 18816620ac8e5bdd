// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNotifyPostsEmitRequest(t *testing.T) {
	type received struct {
		Event   string          `json:"event"`
		Room    string          `json:"room"`
		Payload json.RawMessage `json:"payload"`
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/emit" {
			t.Errorf("request = %s %s, want POST /api/emit", r.Method, r.URL.Path)
		}
		if token := r.Header.Get("X-Internal-Token"); token != "bridge-secret" {
			t.Errorf("internal token = %q, want bridge-secret", token)
		}
		var req received
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got <- req
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	n := New(srv.URL, WithInternalToken("bridge-secret"))
	n.NotifyUser(context.Background(), "user-42", "notification", map[string]string{"title": "hi"})

	select {
	case req := <-got:
		if req.Event != "notification" {
			t.Fatalf("event = %q, want notification", req.Event)
		}
		if req.Room != "user:user-42" {
			t.Fatalf("room = %q, want user:user-42", req.Room)
		}
	case <-time.After(time.Second):
		t.Fatal("emit request never arrived")
	}
}

func TestNotifySwallowsGatewayOutage(t *testing.T) {
	// Closed server: every request fails at the transport level. Notify
	// must return normally.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	n := New(srv.URL, WithTimeout(100*time.Millisecond))
	n.Notify(context.Background(), "user:42", "notification", nil)
}

func TestNotifySwallowsRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"event and room are required"}`))
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.Notify(context.Background(), "user:42", "notification", nil)

	if calls.Load() != 1 {
		t.Fatalf("gateway saw %d requests, want 1", calls.Load())
	}
}

func TestNotifySwallowsUnmarshalablePayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := New(srv.URL)
	// Channels cannot be marshaled; the failure stays local.
	n.Notify(context.Background(), "user:42", "notification", make(chan int))

	if calls.Load() != 0 {
		t.Fatalf("gateway saw %d requests for an unmarshalable payload, want 0", calls.Load())
	}
}
