// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Yab112/communicationplatformapp-sub000/internal/auth"
	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
	"github.com/Yab112/communicationplatformapp-sub000/internal/realtime"
	"github.com/Yab112/communicationplatformapp-sub000/internal/store"
)

const testSecret = "test-secret-0123456789-0123456789-abcdef"

// nullStore satisfies store.MessageStore for tests that never hit it.
type nullStore struct{}

func (nullStore) CreateMessage(context.Context, store.NewMessage) (*store.Message, error) {
	return &store.Message{ID: "msg-1"}, nil
}
func (nullStore) SetUserStatus(context.Context, string, string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 4000},
		Security: config.SecurityConfig{
			JWTSecret:         testSecret,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitDisabled: true,
		},
		Store: config.StoreConfig{BaseURL: "http://localhost:3000", Timeout: time.Second},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *realtime.Registry) {
	t.Helper()

	verifier, err := auth.NewTokenVerifier(&cfg.Security)
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	reg := realtime.NewRegistry()
	evh := realtime.NewHandlers(reg, nullStore{}, time.Second)
	h := NewHandlers(cfg, reg, evh, verifier)

	srv := httptest.NewServer(NewRouter(cfg, h))
	t.Cleanup(srv.Close)
	return srv, reg
}

func issueToken(t *testing.T, cfg *config.Config, userID string) string {
	t.Helper()
	verifier, err := auth.NewTokenVerifier(&cfg.Security)
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	token, err := verifier.Issue(userID, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func dialSocket(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v (resp %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env.Event, env.Data
}

func waitForConnections(t *testing.T, reg *realtime.Registry, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for reg.ConnectionCount() != want {
		select {
		case <-deadline:
			t.Fatalf("connections = %d, want %d", reg.ConnectionCount(), want)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func postEmit(t *testing.T, srv *httptest.Server, body string, headers map[string]string) (*http.Response, EmitResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/emit", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /api/emit: %v", err)
	}
	defer resp.Body.Close()

	var out EmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode emit response: %v", err)
	}
	return resp, out
}

func TestWebSocketRejectsMissingCredential(t *testing.T) {
	srv, reg := newTestServer(t, testConfig())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without credential succeeded, want rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake status = %v, want 401", resp)
	}
	if got := reg.ConnectionCount(); got != 0 {
		t.Fatalf("connections = %d after rejected handshake, want 0", got)
	}
}

func TestWebSocketRejectsForgedToken(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	other := testConfig()
	other.Security.JWTSecret = "another-secret-entirely-0123456789abcdef"
	forged := issueToken(t, other, "user-a")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + forged
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with forged token succeeded, want rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake status = %v, want 401", resp)
	}
}

func TestEmitValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing event", `{"room":"user:42","payload":{}}`},
		{"missing room", `{"event":"notification","payload":{}}`},
		{"missing payload", `{"event":"notification","room":"user:42"}`},
		{"empty strings", `{"event":"","room":""}`},
		{"malformed json", `{"event":"notification",`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, testConfig())
			resp, out := postEmit(t, srv, tt.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if out.Success {
				t.Fatal("success = true for invalid emit, want false")
			}
			if out.Error == "" {
				t.Fatal("error message missing from rejection")
			}
		})
	}
}

func TestEmitToEmptyRoomSucceeds(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, out := postEmit(t, srv, `{"event":"notification","room":"user:nobody","payload":{"text":"hi"}}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (fire-and-forget)", resp.StatusCode)
	}
	if !out.Success {
		t.Fatalf("success = false, want true: %q", out.Error)
	}

	// An explicit null payload is present, just empty. Only an absent
	// payload field is rejected.
	resp, out = postEmit(t, srv, `{"event":"notification","room":"user:nobody","payload":null}`, nil)
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("null payload: status = %d success = %v, want 200/true", resp.StatusCode, out.Success)
	}
}

func TestEmitInternalTokenEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.InternalToken = "bridge-secret"
	srv, _ := newTestServer(t, cfg)

	body := `{"event":"notification","room":"user:42","payload":{}}`

	resp, out := postEmit(t, srv, body, nil)
	if resp.StatusCode != http.StatusUnauthorized || out.Success {
		t.Fatalf("status = %d success = %v without token, want 401/false", resp.StatusCode, out.Success)
	}

	resp, out = postEmit(t, srv, body, map[string]string{"X-Internal-Token": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d with wrong token, want 401", resp.StatusCode)
	}

	resp, out = postEmit(t, srv, body, map[string]string{"X-Internal-Token": "bridge-secret"})
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status = %d success = %v with valid token, want 200/true", resp.StatusCode, out.Success)
	}
}

// TestEmitDeliveredToUserRoom drives the full notification path: connect a
// socket, emit into the user's auto-joined inbox room over HTTP, and read
// the event off the socket.
func TestEmitDeliveredToUserRoom(t *testing.T) {
	cfg := testConfig()
	srv, reg := newTestServer(t, cfg)

	recipient := dialSocket(t, srv, issueToken(t, cfg, "user-42"))
	bystander := dialSocket(t, srv, issueToken(t, cfg, "user-99"))
	waitForConnections(t, reg, 2)

	resp, out := postEmit(t, srv, `{"event":"notification","room":"user:user-42","payload":{"title":"new follower"}}`, nil)
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("emit failed: status %d, %+v", resp.StatusCode, out)
	}

	event, data := readEnvelope(t, recipient)
	if event != "notification" {
		t.Fatalf("event = %q, want notification", event)
	}
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Title != "new follower" {
		t.Fatalf("payload = %s, want the emitted payload verbatim", data)
	}

	// The bystander's inbox room must stay silent.
	if err := bystander.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, _, err := bystander.ReadMessage(); err == nil {
		t.Fatal("bystander received an event emitted to another user's room")
	}
}

// TestSocketJoinAndChatFlow exercises the client event path end to end:
// join a chat room over the socket, send a message and observe the stored
// record fanning out to both members.
func TestSocketJoinAndChatFlow(t *testing.T) {
	cfg := testConfig()
	srv, reg := newTestServer(t, cfg)

	alice := dialSocket(t, srv, issueToken(t, cfg, "alice"))
	bob := dialSocket(t, srv, issueToken(t, cfg, "bob"))
	waitForConnections(t, reg, 2)

	join := func(conn *websocket.Conn) {
		if err := conn.WriteJSON(map[string]interface{}{"event": "join-room", "data": "chat-7"}); err != nil {
			t.Fatalf("write join-room: %v", err)
		}
	}
	join(alice)
	join(bob)

	deadline := time.After(2 * time.Second)
	for reg.MemberCount("chat-7") != 2 {
		select {
		case <-deadline:
			t.Fatalf("room members = %d, want 2", reg.MemberCount("chat-7"))
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if err := alice.WriteJSON(map[string]interface{}{
		"event": "send-message",
		"data":  map[string]interface{}{"roomId": "chat-7", "content": "hey bob"},
	}); err != nil {
		t.Fatalf("write send-message: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		event, _ := readEnvelope(t, conn)
		if event != "new-message" {
			t.Fatalf("%s got event %q, want new-message", name, event)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	cfg := testConfig()
	srv, reg := newTestServer(t, cfg)

	resp, err := srv.Client().Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("health.Status = %q, want ok", health.Status)
	}

	// Registry service not running yet: ready probe must fail.
	ready, err := srv.Client().Get(srv.URL + "/api/health/ready")
	if err != nil {
		t.Fatalf("GET /api/health/ready: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d before registry runs, want 503", ready.StatusCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = reg.RunWithContext(ctx) }()
	deadline := time.After(time.Second)
	for !reg.Ready() {
		select {
		case <-deadline:
			t.Fatal("registry never became ready")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	ready, err = srv.Client().Get(srv.URL + "/api/health/ready")
	if err != nil {
		t.Fatalf("GET /api/health/ready: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d with registry running, want 200", ready.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}
}
