// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *MemoryBus {
	return NewMemoryBus(MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour}, nil)
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var received atomic.Int32
	_, err := bus.Subscribe(EventProxyLaunched, func(ctx context.Context, e Event) error {
		received.Add(1)
		assert.Equal(t, "demo", e.Payload["profile"])
		return nil
	})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{
		Type:    EventProxyLaunched,
		Payload: map[string]interface{}{"profile": "demo"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load())
}

func TestWildcardSubscription(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var count atomic.Int32
	_, err := bus.Subscribe("proxy.*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventProxyLaunched})
	bus.Publish(ctx, Event{Type: EventProxyExited})
	bus.Publish(ctx, Event{Type: EventLogViewerShow}) // no match

	assert.Equal(t, int32(2), count.Load())
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		eventType string
		pattern   string
		want      bool
	}{
		{EventProxyLaunched, "*", true},
		{EventProxyLaunched, EventProxyLaunched, true},
		{EventProxyLaunched, "proxy.*", true},
		{EventProxyLaunched, "*.launched", true},
		{EventProxyLaunched, "logviewer.*", false},
		{EventProxyLaunched, "*.exited", false},
		{EventProxyLaunched, "", false},
		{"", "*", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.eventType, tt.pattern),
			"matchPattern(%q, %q)", tt.eventType, tt.pattern)
	}
}

func TestSubscribeAsync(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	done := make(chan Event, 1)
	_, err := bus.SubscribeAsync("proxy.*", func(ctx context.Context, e Event) error {
		done <- e
		return nil
	}, 10)
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventProxyStopped})

	select {
	case e := <-done:
		assert.Equal(t, EventProxyStopped, e.Type)
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var count atomic.Int32
	id, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventProxyLaunched})
	require.NoError(t, bus.Unsubscribe(id))
	bus.Publish(context.Background(), Event{Type: EventProxyLaunched})

	assert.Equal(t, int32(1), count.Load())
	assert.ErrorIs(t, bus.Unsubscribe(id), ErrSubscriptionNotFound)
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Type: EventProxyLaunched})
	})
}

func TestHistory(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventProxyLaunched})
	bus.Publish(ctx, Event{Type: EventProxyExited})
	bus.Publish(ctx, Event{Type: EventLogViewerShow})

	all := bus.History(Filter{})
	assert.Len(t, all, 3)

	proxyOnly := bus.History(Filter{Types: []string{"proxy.*"}})
	assert.Len(t, proxyOnly, 2)

	limited := bus.History(Filter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, EventLogViewerShow, limited[0].Type)
}

func TestHistoryMaxEvents(t *testing.T) {
	bus := NewMemoryBus(MemoryBusConfig{HistoryMaxEvents: 5, HistoryMaxAge: time.Hour}, nil)
	defer bus.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		bus.Publish(ctx, Event{Type: EventProxyLaunched})
	}

	assert.Len(t, bus.History(Filter{}), 5)
}

func TestClosedBusRejectsOperations(t *testing.T) {
	bus := newTestBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), Event{Type: EventProxyLaunched})
	assert.ErrorIs(t, err, ErrBusClosed)

	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)

	// Closing twice is fine.
	assert.NoError(t, bus.Close())
}
