// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

//go:build nats

package main

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
	"github.com/Yab112/communicationplatformapp-sub000/internal/realtime"
	"github.com/Yab112/communicationplatformapp-sub000/internal/supervisor"
	"github.com/Yab112/communicationplatformapp-sub000/internal/supervisor/services"
)

// natsHandler adapts a NATS connection to realtime.BrokerMessageHandler.
type natsHandler struct {
	conn *natsgo.Conn
}

// Subscribe opens a channel-based subscription on the subject pattern and
// bridges it to a plain byte channel that closes with the context.
func (h *natsHandler) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	msgCh := make(chan *natsgo.Msg, 256)
	sub, err := h.conn.ChanSubscribe(subject, msgCh)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				logging.Warn().Err(err).Msg("NATS unsubscribe failed")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				select {
				case out <- msg.Data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (h *natsHandler) Close() error {
	h.conn.Close()
	return nil
}

// initBroker connects to NATS and adds the broker bridge to the realtime
// layer of the supervisor tree. Active only when NATS_ENABLED=true.
func initBroker(cfg *config.Config, reg *realtime.Registry, tree *supervisor.Tree) error {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS cluster bridge disabled (NATS_ENABLED=false)")
		return nil
	}

	nc, err := natsgo.Connect(cfg.NATS.URL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	logging.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")

	sub := realtime.NewBrokerSubscriber(reg, &natsHandler{conn: nc}, cfg.NATS.SubjectPrefix)
	tree.AddRealtimeService(services.NewRunnerService("broker-bridge", sub))
	logging.Info().Str("subject_prefix", cfg.NATS.SubjectPrefix).Msg("NATS cluster bridge added to supervisor tree")
	return nil
}
