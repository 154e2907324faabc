// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backlog provides the bounded in-memory history of captured
// child process output. The backlog outlives individual child processes:
// a restart keeps appending to the same buffer so the operator can see
// output across runs.
package backlog

import (
	"sync"
	"time"
)

const defaultCapacity = 1000

// Source identifies which output stream a line was captured from.
type Source string

const (
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
)

// Entry is a single captured output line.
type Entry struct {
	Source    Source
	Timestamp time.Time
	Line      string
	Sequence  int64
}

// Backlog is a thread-safe ring buffer of output lines with subscription
// support. Appending past capacity evicts the oldest entries first.
type Backlog struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	size     int
	head     int // next write position
	sequence int64

	subMu       sync.RWMutex
	subscribers map[chan Entry]struct{}
}

// New creates a backlog with the given capacity.
func New(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Backlog{
		entries:     make([]Entry, capacity),
		capacity:    capacity,
		subscribers: make(map[chan Entry]struct{}),
	}
}

// Append adds a line to the backlog and notifies subscribers.
func (b *Backlog) Append(source Source, line string) {
	b.mu.Lock()
	b.sequence++
	entry := Entry{
		Source:    source,
		Timestamp: time.Now(),
		Line:      line,
		Sequence:  b.sequence,
	}
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.mu.Unlock()

	// Notify subscribers without blocking the writer; a full channel
	// means the subscriber is too slow and the line is dropped for it.
	b.subMu.RLock()
	for ch := range b.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	b.subMu.RUnlock()
}

// Last returns a snapshot of the most recent n entries, oldest first.
func (b *Backlog) Last(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.size == 0 {
		return []Entry{}
	}
	if n > b.size {
		n = b.size
	}

	result := make([]Entry, n)
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// All returns a snapshot of every entry currently retained.
func (b *Backlog) All() []Entry {
	b.mu.RLock()
	n := b.size
	b.mu.RUnlock()
	return b.Last(n)
}

// Subscribe returns a channel that receives entries appended after the
// call. The channel is buffered; slow consumers miss lines rather than
// stalling the reader goroutines.
func (b *Backlog) Subscribe() chan Entry {
	ch := make(chan Entry, 100)
	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Backlog) Unsubscribe(ch chan Entry) {
	b.subMu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.subMu.Unlock()
}

// CloseSubscribers closes all subscriber channels and resets the
// subscriber set. Used at shutdown so consumers exit cleanly.
func (b *Backlog) CloseSubscribers() {
	b.subMu.Lock()
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan Entry]struct{})
	b.subMu.Unlock()
}

// Sequence returns the sequence number of the most recent entry.
func (b *Backlog) Sequence() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// Clear removes all entries. Sequence numbers keep counting up.
func (b *Backlog) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.size = 0
	b.head = 0
	for i := range b.entries {
		b.entries[i] = Entry{}
	}
}

// Size returns the number of entries currently retained.
func (b *Backlog) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of entries the backlog can hold.
func (b *Backlog) Capacity() int {
	return b.capacity
}
