// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the daemon together: configuration, logging, event
// bus, profile tree, supervisor, control socket and directory watcher.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wingedpig/sslaunch/internal/backlog"
	"github.com/wingedpig/sslaunch/internal/config"
	"github.com/wingedpig/sslaunch/internal/control"
	"github.com/wingedpig/sslaunch/internal/controller"
	"github.com/wingedpig/sslaunch/internal/events"
	"github.com/wingedpig/sslaunch/internal/profile"
	"github.com/wingedpig/sslaunch/internal/state"
	"github.com/wingedpig/sslaunch/internal/supervisor"
	"github.com/wingedpig/sslaunch/internal/watcher"
	"github.com/wingedpig/sslaunch/pkg/protocol"
)

// Options holds command line options for the daemon.
type Options struct {
	ConfigPath  string
	ProfilesDir string // overrides the configured profile directory
	SocketPath  string // overrides the configured socket path
	Debug       bool
	Version     string
}

// App is the daemon container.
type App struct {
	opts   Options
	config *config.Config
	logger *zap.Logger

	bus         events.Bus
	backlog     *backlog.Backlog
	supervisor  *supervisor.Supervisor
	controller  *controller.Controller
	server      *control.Server
	treeWatcher *watcher.TreeWatcher

	done     chan struct{}
	stopOnce sync.Once
}

// New loads configuration and creates the app. Components are wired in
// Initialize.
func New(opts Options) (*App, error) {
	app := &App{
		opts: opts,
		done: make(chan struct{}),
	}

	loader := config.NewLoader()
	configPath := opts.ConfigPath
	if configPath == "" {
		if found, err := loader.FindConfig(); err == nil {
			configPath = found
		}
	}
	var cfg *config.Config
	if configPath != "" {
		loaded, err := loader.LoadWithDefaults(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		// The daemon is fully functional without a config file.
		cfg = config.Default()
	}
	if opts.ProfilesDir != "" {
		cfg.Profiles.Dir = opts.ProfilesDir
	}
	if opts.SocketPath != "" {
		cfg.Socket.Path = opts.SocketPath
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
	}
	app.config = cfg

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	app.logger = logger

	return app, nil
}

// Logger exposes the daemon logger for main.
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// Initialize builds all components. The daemon comes up even when the
// profile tree is broken; the condition is logged and recoverable with
// a reload once the directory is fixed.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	app.bus = events.NewMemoryBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    cfg.Events.History.MaxAgeDuration(),
	}, app.logger.Named("events"))

	app.backlog = backlog.New(cfg.Backlog.Capacity)

	stopSignal, err := supervisor.ParseSignal(cfg.Supervisor.StopSignal)
	if err != nil {
		return fmt.Errorf("supervisor config: %w", err)
	}
	app.supervisor = supervisor.New(supervisor.Config{
		BinLookup:   cfg.Supervisor.BinLookup,
		StopTimeout: cfg.Supervisor.StopTimeoutDuration(),
		StopSignal:  stopSignal,
	}, app.backlog, app.bus, app.logger.Named("supervisor"))

	profilesDir := config.ExpandHome(cfg.Profiles.Dir)
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	tree, err := profile.Load(profilesDir, app.logger.Named("profiles"))
	if err != nil {
		app.logger.Error("profile tree failed to load, starting empty", zap.Error(err))
		tree = profile.Empty()
	}

	store := state.NewStore(config.ExpandHome(cfg.State.Path), app.logger.Named("state"))

	app.controller = controller.New(controller.Config{
		ProfilesDir: profilesDir,
		Resume:      cfg.Profiles.Resume,
	}, tree, app.supervisor, app.backlog, store, app.bus, app.logger.Named("controller"))

	app.server = control.New(control.Config{
		SocketPath: cfg.Socket.Path,
	}, app.controller.Handle, app.logger.Named("control"))

	if cfg.Watch.IsEnabled() {
		w, err := watcher.NewTreeWatcher(profilesDir, cfg.Watch.DebounceDuration(), func() {
			app.controller.Handle(ctx, protocol.Request{Cmd: protocol.CmdReload})
		}, app.logger.Named("watcher"))
		if err != nil {
			app.logger.Warn("profile directory watching disabled", zap.Error(err))
		} else {
			app.treeWatcher = w
		}
	}

	return nil
}

// Start begins serving commands.
func (app *App) Start(ctx context.Context) error {
	go app.controller.Run(ctx)

	// Losing the control socket degrades the daemon but does not stop
	// it: the child keeps its supervision and signals still work.
	if err := app.server.Listen(); err != nil {
		app.logger.Error("control socket unavailable", zap.Error(err))
	} else {
		go func() {
			if err := app.server.Serve(ctx); err != nil {
				app.logger.Error("control server stopped", zap.Error(err))
			}
		}()
	}

	app.logger.Info("sslaunchd started",
		zap.String("version", app.opts.Version),
		zap.String("socket", app.config.Socket.Path),
		zap.String("profiles", config.ExpandHome(app.config.Profiles.Dir)))
	return nil
}

// Run initializes, starts, and blocks until a signal, a quit command or
// context cancellation, then shuts down.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		app.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-app.controller.QuitRequested():
		app.logger.Info("quit command received, shutting down")
	case <-ctx.Done():
		app.logger.Info("context cancelled, shutting down")
	case <-app.done:
		app.logger.Info("shutdown requested")
	}

	return app.Shutdown(context.Background())
}

// Stop requests shutdown from another goroutine.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}

// Shutdown tears components down in dependency order: stop accepting
// commands, stop the child, then release everything else.
func (app *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if app.server != nil {
		if err := app.server.Close(); err != nil {
			app.logger.Warn("close control server", zap.Error(err))
		}
	}
	if app.treeWatcher != nil {
		if err := app.treeWatcher.Close(); err != nil {
			app.logger.Warn("close tree watcher", zap.Error(err))
		}
	}
	if app.supervisor != nil {
		if err := app.supervisor.Stop(shutdownCtx); err != nil {
			app.logger.Warn("stop child process", zap.Error(err))
		}
	}
	if app.backlog != nil {
		app.backlog.CloseSubscribers()
	}
	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			app.logger.Warn("close event bus", zap.Error(err))
		}
	}

	app.logger.Info("shutdown complete")
	app.logger.Sync()
	return nil
}

// newLogger builds the daemon logger from the logging config.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
