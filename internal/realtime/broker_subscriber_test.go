// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBroker struct {
	msgs     chan []byte
	subErr   error
	subject  string
	closed   bool
	closedCh chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		msgs:     make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeBroker) Subscribe(_ context.Context, subject string) (<-chan []byte, error) {
	f.subject = subject
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.msgs, nil
}

func (f *fakeBroker) Close() error {
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func TestBrokerSubscriberDeliversEmits(t *testing.T) {
	reg := NewRegistry()
	member := newTestClient("conn-1", "user-a", 8)
	reg.Register(member)
	reg.Join("conn-1", "chat-42")

	broker := newFakeBroker()
	sub := NewBrokerSubscriber(reg, broker, "emit")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.RunWithContext(ctx) }()

	broker.msgs <- []byte(`{"event":"notification","room":"chat-42","payload":{"text":"hi"}}`)

	deadline := time.After(time.Second)
	for len(drain(t, member)) == 0 {
		select {
		case <-deadline:
			t.Fatal("broker emit never reached the room member")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if broker.subject != "emit.>" {
		t.Fatalf("subject = %q, want emit.>", broker.subject)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("RunWithContext returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunWithContext did not return after cancel")
	}
	if !broker.closed {
		t.Fatal("broker handler not closed on shutdown")
	}
}

func TestBrokerSubscriberSkipsMalformedMessages(t *testing.T) {
	reg := NewRegistry()
	member := newTestClient("conn-1", "user-a", 8)
	reg.Register(member)
	reg.Join("conn-1", "chat-42")

	broker := newFakeBroker()
	sub := NewBrokerSubscriber(reg, broker, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.RunWithContext(ctx) }()

	broker.msgs <- []byte(`not json at all`)
	broker.msgs <- []byte(`{"event":"","room":"chat-42"}`)
	broker.msgs <- []byte(`{"event":"notification","room":"chat-42","payload":null}`)

	deadline := time.After(time.Second)
	var got []Envelope
	for len(got) == 0 {
		select {
		case <-deadline:
			t.Fatal("valid emit after malformed ones never delivered")
		default:
			got = drain(t, member)
			time.Sleep(5 * time.Millisecond)
		}
	}
	if len(got) != 1 || got[0].Event != EventNotification {
		t.Fatalf("member got %v, want only the one valid notification", got)
	}
}

func TestBrokerSubscriberSubscribeFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.subErr = errors.New("broker unreachable")
	sub := NewBrokerSubscriber(NewRegistry(), broker, "emit")

	if err := sub.RunWithContext(context.Background()); !errors.Is(err, broker.subErr) {
		t.Fatalf("RunWithContext returned %v, want the subscribe error", err)
	}
}
