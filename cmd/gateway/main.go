// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package main is the entry point for the realtime messaging gateway.
//
// The gateway is the realtime half of the communication platform: it holds
// the websocket connections for every logged-in user, routes chat and
// notification events through rooms, and exposes an internal HTTP bridge
// (/api/emit) that lets the web application push events to connected users.
// Persistence stays with the web application; the gateway calls back into
// its internal CRUD API to store messages and presence.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layered load (env > config.yaml > defaults)
//  2. Logging: zerolog, JSON or console format
//  3. Auth: JWT verifier for the socket handshake (JWT_SECRET)
//  4. Store client: circuit-broken HTTP client for the web app's API
//  5. Registry and handlers: in-memory connection/room state
//  6. Listener: the socket port is bound before the supervisor starts,
//     so a port conflict fails fast instead of being retried forever
//  7. Supervisor tree: registry, optional broker bridge, HTTP server
//
// # Build Tags
//
//	go build -tags nats ./cmd/gateway   # enable the NATS cluster bridge
//
// Room membership lives in process memory. A single instance needs no
// broker; multiple instances behind a load balancer share fan-out through
// NATS (NATS_ENABLED=true plus the build tag).
//
// # Signal Handling
//
// SIGINT/SIGTERM trigger a graceful drain: the ready probe flips to 503,
// every socket receives a close frame, in-flight emits finish, and the
// process exits 0.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yab112/communicationplatformapp-sub000/internal/api"
	"github.com/Yab112/communicationplatformapp-sub000/internal/auth"
	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/realtime"
	"github.com/Yab112/communicationplatformapp-sub000/internal/store"
	"github.com/Yab112/communicationplatformapp-sub000/internal/supervisor"
	"github.com/Yab112/communicationplatformapp-sub000/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("port", cfg.Server.Port).
		Strs("cors_origins", cfg.Security.CORSOrigins).
		Str("store_url", cfg.Store.BaseURL).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting realtime messaging gateway")

	if cfg.Bridge.InternalToken == "" {
		logging.Warn().Msg("BRIDGE_INTERNAL_TOKEN not set; /api/emit accepts any caller that can reach the port")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	verifier, err := auth.NewTokenVerifier(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token verifier")
	}

	storeClient := store.NewClient(&cfg.Store)

	registry := realtime.NewRegistry()
	eventHandlers := realtime.NewHandlers(registry, storeClient, cfg.Store.Timeout)
	httpHandlers := api.NewHandlers(cfg, registry, eventHandlers, verifier)
	router := api.NewRouter(cfg, httpHandlers)

	// Bind the port before starting the tree. Supervision retries crashed
	// services, but a port conflict never resolves itself.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logging.Fatal().Err(err).Str("addr", addr).Msg("Failed to bind socket port")
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	tree.AddRealtimeService(services.NewRunnerService("connection-registry", registry))

	// Optional NATS cluster bridge (no-op unless built with -tags nats).
	if err := initBroker(cfg, registry, tree); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize broker bridge")
	}

	tree.AddAPIService(services.NewHTTPService(server, listener, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", addr).Msg("Gateway listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Draining connections...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Gateway stopped")
}
