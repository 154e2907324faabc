// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading for sslaunchd.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for sslaunchd.
type Config struct {
	Profiles   ProfilesConfig   `json:"profiles"`
	Socket     SocketConfig     `json:"socket"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Backlog    BacklogConfig    `json:"backlog"`
	Events     EventsConfig     `json:"events"`
	Watch      WatchConfig      `json:"watch"`
	State      StateConfig      `json:"state"`
	Logging    LoggingConfig    `json:"logging"`
}

// ProfilesConfig configures profile discovery.
type ProfilesConfig struct {
	// Dir is the root of the profile directory tree.
	Dir string `json:"dir"`
	// Resume switches to the most recently used profile at startup.
	Resume bool `json:"resume"`
}

// SocketConfig configures the control socket.
type SocketConfig struct {
	Path string `json:"path"`
}

// SupervisorConfig configures child process handling.
type SupervisorConfig struct {
	StopTimeout string `json:"stop_timeout"`
	StopSignal  string `json:"stop_signal"` // "SIGTERM", "SIGINT" or "SIGKILL"
	// BinLookup is the executable name resolved on $PATH when a profile
	// does not set bin_path.
	BinLookup string `json:"bin_lookup"`
}

// BacklogConfig configures the output backlog.
type BacklogConfig struct {
	Capacity int `json:"capacity"`
}

// EventsConfig configures event retention.
type EventsConfig struct {
	History HistoryConfig `json:"history"`
}

// HistoryConfig bounds the event history.
type HistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// WatchConfig configures profile directory watching.
type WatchConfig struct {
	Enabled  *bool  `json:"enabled"`
	Debounce string `json:"debounce"`
}

// IsEnabled reports whether watching is on (default: true).
func (w WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// StateConfig configures persisted application state.
type StateConfig struct {
	Path string `json:"path"`
}

// LoggingConfig configures the daemon logger.
type LoggingConfig struct {
	Level  string `json:"level"`  // "debug", "info", "warn", "error"
	Format string `json:"format"` // "console" or "json"
}

// StopTimeoutDuration returns the parsed stop timeout.
func (s SupervisorConfig) StopTimeoutDuration() time.Duration {
	return ParseDuration(s.StopTimeout, 10*time.Second)
}

// DebounceDuration returns the parsed watch debounce interval.
func (w WatchConfig) DebounceDuration() time.Duration {
	return ParseDuration(w.Debounce, 200*time.Millisecond)
}

// MaxAgeDuration returns the parsed history retention window.
func (h HistoryConfig) MaxAgeDuration() time.Duration {
	return ParseDuration(h.MaxAge, time.Hour)
}

// ParseDuration parses a duration string, returning fallback on empty or
// invalid input.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
