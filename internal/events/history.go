// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sync"
	"time"
)

// history retains a bounded window of past events.
type history struct {
	mu        sync.RWMutex
	events    []Event
	maxEvents int
	maxAge    time.Duration
}

func newHistory(maxEvents int, maxAge time.Duration) *history {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &history{
		maxEvents: maxEvents,
		maxAge:    maxAge,
	}
}

func (h *history) add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
	if len(h.events) > h.maxEvents {
		h.events = h.events[len(h.events)-h.maxEvents:]
	}
}

// prune drops events older than maxAge.
func (h *history) prune() {
	cutoff := time.Now().Add(-h.maxAge)

	h.mu.Lock()
	defer h.mu.Unlock()

	keep := h.events[:0]
	for _, e := range h.events {
		if e.Timestamp.After(cutoff) {
			keep = append(keep, e)
		}
	}
	h.events = keep
}

func (h *history) query(filter Filter) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range h.events {
		if !matchesFilter(e, filter) {
			continue
		}
		result = append(result, e)
	}

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result
}

func matchesFilter(event Event, filter Filter) bool {
	if len(filter.Types) > 0 {
		matched := false
		for _, pattern := range filter.Types {
			if matchPattern(event.Type, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !filter.Since.IsZero() && !event.Timestamp.After(filter.Since) {
		return false
	}
	return true
}
