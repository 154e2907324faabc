// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package state persists the small bits of daemon state that survive
// restarts, currently just the most recently selected profile.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// State is the persisted daemon state.
type State struct {
	MostRecentProfile string `json:"most_recent_profile"`
}

// Store reads and writes the state file. Writes go through a temp file
// and rename so a crash never leaves a half-written file.
type Store struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Load reads the state file. A missing file yields the zero state; a
// corrupt file is logged and also yields the zero state, so a bad write
// never blocks daemon startup.
func (s *Store) Load() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read state file", zap.String("path", s.path), zap.Error(err))
		}
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("corrupt state file, starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return State{}
	}
	return st
}

// Save writes the state file, creating parent directories as needed.
func (s *Store) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// SetMostRecentProfile records the last selected profile name. Errors
// are logged, not returned: losing the remembered selection is not
// worth failing a switch for.
func (s *Store) SetMostRecentProfile(name string) {
	st := s.Load()
	st.MostRecentProfile = name
	if err := s.Save(st); err != nil {
		s.logger.Warn("persist most recent profile", zap.Error(err))
	}
}
