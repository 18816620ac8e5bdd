// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package realtime

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Yab112/communicationplatformapp-sub000/internal/logging"
)

// BrokerMessageHandler is the message source interface for the broker
// bridge. The concrete NATS implementation lives behind the nats build tag
// in cmd/gateway; keeping an interface here means this package never
// imports a broker client.
type BrokerMessageHandler interface {
	// Subscribe subscribes to a subject pattern and returns a channel of
	// raw message bodies. The channel closes when ctx is canceled.
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)
	// Close releases broker resources.
	Close() error
}

// brokerEmit mirrors the emit bridge body. Instances behind a load
// balancer publish emits to the broker instead of (or in addition to) the
// local registry, and every instance's subscriber fans them out to its own
// connections - room membership is process-local state.
type brokerEmit struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// BrokerSubscriber feeds broker-published emits into the room router.
type BrokerSubscriber struct {
	reg     *Registry
	handler BrokerMessageHandler
	subject string
}

// NewBrokerSubscriber creates a subscriber on "<prefix>.>".
func NewBrokerSubscriber(reg *Registry, handler BrokerMessageHandler, prefix string) *BrokerSubscriber {
	if prefix == "" {
		prefix = "emit"
	}
	return &BrokerSubscriber{
		reg:     reg,
		handler: handler,
		subject: prefix + ".>",
	}
}

// RunWithContext consumes broker messages until the context is canceled.
// Designed for suture supervision; a broker failure surfaces as a returned
// error and the supervisor restarts the subscription.
func (s *BrokerSubscriber) RunWithContext(ctx context.Context) error {
	msgs, err := s.handler.Subscribe(ctx, s.subject)
	if err != nil {
		return fmt.Errorf("broker subscribe failed: %w", err)
	}
	defer func() {
		if err := s.handler.Close(); err != nil {
			logging.Warn().Err(err).Msg("broker close failed")
		}
	}()

	logging.Info().Str("subject", s.subject).Msg("broker bridge subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			var emit brokerEmit
			if err := json.Unmarshal(raw, &emit); err != nil {
				logging.Warn().Err(err).Msg("dropping malformed broker emit")
				continue
			}
			if emit.Event == "" || emit.Room == "" {
				logging.Warn().Msg("dropping broker emit with missing fields")
				continue
			}
			s.reg.Deliver(emit.Room, emit.Event, emit.Payload)
		}
	}
}
