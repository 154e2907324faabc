// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"), nil)
	assert.Equal(t, State{}, store.Load())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewStore(path, nil)

	require.NoError(t, store.Save(State{MostRecentProfile: "home"}))
	assert.Equal(t, "home", store.Load().MostRecentProfile)

	// A second store over the same path sees the same state.
	assert.Equal(t, "home", NewStore(path, nil).Load().MostRecentProfile)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewStore(path, nil)
	assert.Equal(t, State{}, store.Load())
}

func TestSetMostRecentProfile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"), nil)
	store.SetMostRecentProfile("work")
	assert.Equal(t, "work", store.Load().MostRecentProfile)

	store.SetMostRecentProfile("home")
	assert.Equal(t, "home", store.Load().MostRecentProfile)
}
