// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validSecret = "config-test-secret-0123456789-0123456789"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", validSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Store.Timeout != 5*time.Second {
		t.Errorf("Store.Timeout = %s, want 5s", cfg.Store.Timeout)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("CORSOrigins = %v, want [http://localhost:3000]", cfg.Security.CORSOrigins)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled = true by default, want false")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", validSecret)
	t.Setenv("SOCKET_PORT", "5001")
	t.Setenv("CORS_ORIGINS", "https://campus.example.edu, https://app.example.edu")
	t.Setenv("STORE_BASE_URL", "http://webapp:3000")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("BRIDGE_INTERNAL_TOKEN", "bridge-secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 5001 {
		t.Errorf("Server.Port = %d, want 5001", cfg.Server.Port)
	}
	want := []string{"https://campus.example.edu", "https://app.example.edu"}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	if cfg.Store.BaseURL != "http://webapp:3000" {
		t.Errorf("Store.BaseURL = %q, want http://webapp:3000", cfg.Store.BaseURL)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Errorf("Store.Timeout = %s, want 2s", cfg.Store.Timeout)
	}
	if cfg.Bridge.InternalToken != "bridge-secret" {
		t.Errorf("Bridge.InternalToken = %q, want bridge-secret", cfg.Bridge.InternalToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 4100
security:
  cors_origins:
    - https://campus.example.edu
nats:
  enabled: true
  url: nats://broker:4222
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("JWT_SECRET", validSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100 from config file", cfg.Server.Port)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("NATS = %+v, want enabled with broker url", cfg.NATS)
	}
}

func TestEnvBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 4100\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("JWT_SECRET", validSecret)
	t.Setenv("SOCKET_PORT", "4200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200 (env over file)", cfg.Server.Port)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without JWT_SECRET, want error")
	}

	t.Setenv("JWT_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded with short JWT_SECRET, want error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := defaultConfig()
		c.Security.JWTSecret = validSecret
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no cors origins", func(c *Config) { c.Security.CORSOrigins = nil }, true},
		{"no store url", func(c *Config) { c.Store.BaseURL = "" }, true},
		{"bad store timeout", func(c *Config) { c.Store.Timeout = 0 }, true},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformIgnoresUnmappedVars(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Fatalf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("SOCKET_PORT"); got != "server.port" {
		t.Fatalf("envTransformFunc(SOCKET_PORT) = %q, want server.port", got)
	}
}
