// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

//go:build !nats

package main

import (
	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/realtime"
	"github.com/Yab112/communicationplatformapp-sub000/internal/supervisor"
)

// initBroker is a no-op stub for non-NATS builds.
func initBroker(cfg *config.Config, _ *realtime.Registry, _ *supervisor.Tree) error {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("NATS_ENABLED=true but NATS support not compiled (build with -tags nats)")
	}
	return nil
}
