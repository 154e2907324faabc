// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher reloads the profile tree when its directory changes
// on disk.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadKey = "reload"

// TreeWatcher watches the profile directory recursively and invokes a
// reload callback, debounced, on any change. fsnotify watches are not
// recursive, so every subdirectory gets its own watch; directories
// created later are picked up from their create events.
type TreeWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	onReload  func()
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTreeWatcher starts watching root. onReload runs on the watcher's
// goroutine after changes settle; it must not block for long.
func NewTreeWatcher(root string, debounce time.Duration, onReload func(), logger *zap.Logger) (*TreeWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &TreeWatcher{
		root:      root,
		watcher:   fsWatcher,
		debouncer: NewDebouncer(debounce),
		onReload:  onReload,
		logger:    logger,
	}

	if err := w.watchRecursive(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Info("watching profile directory", zap.String("dir", root))
	return w, nil
}

// Close stops the watcher and cancels any pending reload.
func (w *TreeWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.debouncer.Stop()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// watchRecursive adds watches for dir and every subdirectory. Symlinks
// are not followed, matching the tree loader.
func (w *TreeWatcher) watchRecursive(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if err := w.watchRecursive(filepath.Join(dir, entry.Name())); err != nil {
			// A directory that vanished mid-walk is not fatal; the next
			// reload sees the final state anyway.
			w.logger.Warn("watch subdirectory", zap.Error(err))
		}
	}
	return nil
}

func (w *TreeWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}

func (w *TreeWatcher) handleEvent(event fsnotify.Event) {
	// Chmod-only events churn on some filesystems and never change the
	// tree shape.
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.watchRecursive(event.Name); err != nil {
				w.logger.Warn("watch new directory", zap.Error(err))
			}
		}
	}

	w.logger.Debug("profile directory changed",
		zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.debouncer.Debounce(reloadKey, w.onReload)
}
