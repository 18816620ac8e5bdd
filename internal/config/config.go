// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package config provides layered configuration for the gateway process.
//
// Configuration is loaded via Koanf v2 with the following precedence
// (highest wins):
//
//  1. Environment variables (SOCKET_PORT, JWT_SECRET, ...)
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Built-in defaults
//
// The gateway runs next to the web application process; its socket port is
// distinct from the web server's port, and its CORS origin list names the
// web application origin(s) allowed to open socket connections.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Bridge   BridgeConfig   `koanf:"bridge"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	// Host is the bind address. Default 0.0.0.0.
	Host string `koanf:"host"`

	// Port is the socket server port. Must differ from the web app port.
	Port int `koanf:"port"`

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`

	// ShutdownTimeout is the grace period for draining on SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds handshake authentication and CORS settings.
type SecurityConfig struct {
	// JWTSecret signs/verifies handshake tokens (HMAC-SHA256).
	// Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// CORSOrigins lists origins allowed to open socket connections,
	// normally just the web application origin.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs / RateLimitWindow bound ingress HTTP request rates.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// StoreConfig points at the web application's internal CRUD API, the
// external collaborator that persists messages and user status.
type StoreConfig struct {
	// BaseURL of the web application, e.g. http://localhost:3000.
	BaseURL string `koanf:"base_url"`

	// ServiceToken authenticates gateway-to-store calls.
	ServiceToken string `koanf:"service_token"`

	// Timeout bounds each store call so a hung store stalls only the one
	// handler that is waiting on it.
	Timeout time.Duration `koanf:"timeout"`
}

// BridgeConfig holds settings for the internal HTTP emit ingress.
type BridgeConfig struct {
	// InternalToken, when set, must be presented by emit callers in the
	// X-Internal-Token header. Empty disables the check (loopback-only
	// deployments).
	InternalToken string `koanf:"internal_token"`
}

// NATSConfig enables the optional broker bridge for clustered deployments.
// Room membership lives in process memory, so multiple gateway instances
// must share fan-out through a broker instead (built with -tags nats).
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              4000,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			BaseURL:      "http://localhost:3000",
			ServiceToken: "",
			Timeout:      5 * time.Second,
		},
		Bridge: BridgeConfig{
			InternalToken: "",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "emit",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for values that would make the process
// unsafe or unable to start. Called by Load; a failure here is fatal.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but was empty")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if len(c.Security.CORSOrigins) == 0 {
		return fmt.Errorf("security.cors_origins must name at least one allowed origin")
	}
	if c.Store.BaseURL == "" {
		return fmt.Errorf("store.base_url is required")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive, got %s", c.Store.Timeout)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	return nil
}
