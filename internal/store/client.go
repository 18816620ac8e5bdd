// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package store is the gateway's client for the web application's internal
// CRUD API - the external collaborator that owns all persistence. The
// gateway only needs two operations from it: creating chat messages and
// updating user presence status. Everything else about the store is opaque.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/metrics"
)

// User is the sender info the store attaches to persisted messages.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Message is a chat message as returned by the store after persistence,
// including the server-assigned id, sender info and timestamps. The gateway
// broadcasts it verbatim as the new-message payload.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	RoomID    string    `json:"roomId"`
	Sender    User      `json:"sender"`
	FileURL   string    `json:"fileUrl,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	FileType  string    `json:"fileType,omitempty"`
	FileSize  int64     `json:"fileSize,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage is the payload for creating a message.
type NewMessage struct {
	SenderID string `json:"senderId"`
	RoomID   string `json:"roomId"`
	Content  string `json:"content"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// MessageStore is the collaborator interface the event handlers depend on.
// *Client is the production implementation; tests substitute fakes.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg NewMessage) (*Message, error)
	SetUserStatus(ctx context.Context, userID, status string) error
}

// Client calls the web application's internal API over HTTP, authenticated
// with a service bearer token and guarded by a circuit breaker so a dead
// store fails fast instead of tying up handler goroutines.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *breaker
}

// NewClient creates a store client from configuration.
func NewClient(cfg *config.StoreConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.ServiceToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("store-api"),
	}
}

// CreateMessage persists a chat message and returns the stored record with
// sender info filled in by the store.
func (c *Client) CreateMessage(ctx context.Context, msg NewMessage) (*Message, error) {
	start := time.Now()
	var stored Message
	err := c.breaker.execute(func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/internal/messages", msg, &stored)
	})
	metrics.RecordStoreRequest("create_message", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// SetUserStatus updates a user's presence status ("online" / "offline").
func (c *Client) SetUserStatus(ctx context.Context, userID, status string) error {
	start := time.Now()
	body := map[string]string{"status": status}
	err := c.breaker.execute(func() error {
		return c.doJSON(ctx, http.MethodPut, "/api/internal/users/"+userID+"/status", body, nil)
	})
	metrics.RecordStoreRequest("set_user_status", time.Since(start), err)
	return err
}

// doJSON issues one JSON request against the store and decodes the response
// into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("store returned non-success status")
		return fmt.Errorf("store returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode store response: %w", err)
		}
	}
	return nil
}
