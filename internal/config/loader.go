// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse HJSON to an intermediate map, then round-trip through JSON
	// for struct-level type checking.
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(path string) (*Config, error) {
	cfg, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file, first in the current directory,
// then in the user's config directory.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"sslaunch.hjson",
		"sslaunch.json",
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(dir, "sslaunch", "sslaunch.hjson"),
			filepath.Join(dir, "sslaunch", "sslaunch.json"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for sslaunch.hjson, sslaunch.json)")
}

// Default returns a configuration with all defaults applied. Used when
// no config file exists; the daemon is fully functional without one.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.Profiles.Dir == "" {
		cfg.Profiles.Dir = "~/.config/sslaunch/profiles"
	}
	cfg.Profiles.Dir = ExpandHome(cfg.Profiles.Dir)

	if cfg.Socket.Path == "" {
		cfg.Socket.Path = defaultSocketPath()
	}
	cfg.Socket.Path = ExpandHome(cfg.Socket.Path)

	if cfg.Supervisor.StopTimeout == "" {
		cfg.Supervisor.StopTimeout = "10s"
	}
	if cfg.Supervisor.StopSignal == "" {
		cfg.Supervisor.StopSignal = "SIGTERM"
	}
	if cfg.Supervisor.BinLookup == "" {
		cfg.Supervisor.BinLookup = "sslocal"
	}

	if cfg.Backlog.Capacity == 0 {
		cfg.Backlog.Capacity = 1000
	}

	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 10000
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = "1h"
	}

	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = "200ms"
	}

	if cfg.State.Path == "" {
		cfg.State.Path = "~/.local/state/sslaunch/state.json"
	}
	cfg.State.Path = ExpandHome(cfg.State.Path)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// defaultSocketPath prefers the user runtime directory when available.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "sslaunchd.sock")
	}
	return filepath.Join(os.TempDir(), "sslaunchd.sock")
}
