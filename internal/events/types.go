// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process event bus that carries
// state-change notifications from the supervisor and controller out to
// front-end and notification consumers.
package events

import (
	"context"
	"time"
)

// Event is an immutable record of a state change.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Handler processes received events.
type Handler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// Filter selects events from history.
type Filter struct {
	Types []string  // event type patterns (wildcards supported)
	Since time.Time // events after this time
	Limit int       // maximum events to return
}

// Bus is the event pub/sub interface.
type Bus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler Handler) (SubscriptionID, error)

	// SubscribeAsync registers a handler backed by a buffered channel,
	// so slow consumers never block publishers.
	SubscribeAsync(pattern string, handler Handler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter Filter) []Event

	// Close shuts down the bus.
	Close() error
}

// Event types published by the daemon.
const (
	// Child process lifecycle.
	EventProxyLaunched     = "proxy.launched"
	EventProxyStopped      = "proxy.stopped"
	EventProxyExited       = "proxy.exited"
	EventProxyLaunchFailed = "proxy.launch_failed"

	// Forwarded GUI requests.
	EventLogViewerShow = "logviewer.show"
	EventLogViewerHide = "logviewer.hide"

	// Profile tree changes.
	EventProfilesReloaded = "profiles.reloaded"
)
