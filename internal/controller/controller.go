// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package controller is the daemon's command core. Every mutating
// command goes through a single queue and executes one at a time, so
// at most one child process can ever be running and profile switches
// never interleave. Read-only commands bypass the queue.
package controller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wingedpig/sslaunch/internal/backlog"
	"github.com/wingedpig/sslaunch/internal/events"
	"github.com/wingedpig/sslaunch/internal/profile"
	"github.com/wingedpig/sslaunch/internal/state"
	"github.com/wingedpig/sslaunch/internal/supervisor"
	"github.com/wingedpig/sslaunch/pkg/protocol"
)

const (
	defaultLogLines = 100
	commandQueueLen = 16
)

// Config holds the controller's knobs.
type Config struct {
	// ProfilesDir is reloaded from on the reload command.
	ProfilesDir string
	// Resume restores the most recently selected profile on startup.
	Resume bool
}

// Controller serializes commands against the supervisor and profile
// tree.
type Controller struct {
	cfg     Config
	logger  *zap.Logger
	bus     events.Bus
	sup     *supervisor.Supervisor
	backlog *backlog.Backlog
	store   *state.Store

	treeMu  sync.RWMutex
	tree    *profile.Tree
	current *profile.Profile

	cmds chan command
	quit chan struct{}
	done chan struct{}

	quitOnce sync.Once
}

type command struct {
	req   protocol.Request
	reply chan protocol.Response
}

// New creates a controller over an already-loaded profile tree. Call
// Run before submitting commands.
func New(cfg Config, tree *profile.Tree, sup *supervisor.Supervisor, log *backlog.Backlog,
	store *state.Store, bus events.Bus, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		sup:     sup,
		backlog: log,
		store:   store,
		tree:    tree,
		cmds:    make(chan command, commandQueueLen),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.restoreSelection()
	return c
}

// restoreSelection re-selects the most recently used profile, if resume
// is enabled and the profile still exists.
func (c *Controller) restoreSelection() {
	if !c.cfg.Resume || c.store == nil {
		return
	}
	name := c.store.Load().MostRecentProfile
	if name == "" {
		return
	}
	if p, ok := c.tree.Find(name); ok {
		c.current = p
		c.logger.Info("restored profile selection", zap.String("profile", name))
	} else {
		c.logger.Warn("remembered profile no longer exists", zap.String("profile", name))
	}
}

// Run executes queued commands until ctx is cancelled or quit is
// requested. It must be called exactly once.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case cmd := <-c.cmds:
			cmd.reply <- c.execute(ctx, cmd.req)
		}
	}
}

// QuitRequested is closed when a quit command has been accepted.
func (c *Controller) QuitRequested() <-chan struct{} {
	return c.quit
}

// Handle dispatches one request and returns its response. Read-only
// commands are answered immediately; everything else is queued behind
// in-flight mutations.
func (c *Controller) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	switch req.Cmd {
	case protocol.CmdStatus:
		return c.status()
	case protocol.CmdListProfiles:
		return c.listProfiles()
	case protocol.CmdLogs:
		return c.logs(req.Lines)
	}

	cmd := command{req: req, reply: make(chan protocol.Response, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return protocol.Errorf(protocol.ErrSupervisor, "daemon is shutting down")
	case <-ctx.Done():
		return protocol.Errorf(protocol.ErrSupervisor, "request cancelled")
	}

	select {
	case resp := <-cmd.reply:
		return resp
	case <-c.done:
		return protocol.Errorf(protocol.ErrSupervisor, "daemon is shutting down")
	case <-ctx.Done():
		return protocol.Errorf(protocol.ErrSupervisor, "request cancelled")
	}
}

func (c *Controller) execute(ctx context.Context, req protocol.Request) protocol.Response {
	switch req.Cmd {
	case protocol.CmdSwitchProfile:
		return c.switchProfile(ctx, req.Profile)
	case protocol.CmdStart:
		return c.start(ctx, req.Profile)
	case protocol.CmdStop:
		return c.stop(ctx)
	case protocol.CmdRestart:
		return c.restart(ctx)
	case protocol.CmdReload:
		return c.reload(ctx)
	case protocol.CmdLogViewerShow:
		return c.publishOk(ctx, events.EventLogViewerShow)
	case protocol.CmdLogViewerHide:
		return c.publishOk(ctx, events.EventLogViewerHide)
	case protocol.CmdQuit:
		c.quitOnce.Do(func() { close(c.quit) })
		return protocol.Ok()
	default:
		return protocol.Errorf(protocol.ErrUnknownCommand, "unknown command %q", req.Cmd)
	}
}

// switchProfile selects a profile and (re)starts the child into it.
func (c *Controller) switchProfile(ctx context.Context, name string) protocol.Response {
	if name == "" {
		return protocol.Errorf(protocol.ErrProfileNotFound, "switch-profile requires a profile name")
	}

	c.treeMu.RLock()
	p, ok := c.tree.Find(name)
	c.treeMu.RUnlock()
	if !ok {
		return protocol.Errorf(protocol.ErrProfileNotFound, "no profile named %q", name)
	}

	if err := c.sup.Restart(ctx, p); err != nil {
		return supervisorError(err)
	}

	c.treeMu.Lock()
	c.current = p
	c.treeMu.Unlock()
	if c.store != nil {
		c.store.SetMostRecentProfile(p.Name)
	}
	return protocol.Ok()
}

// start launches the selected profile. An explicit profile name selects
// first, like switch-profile, but fails instead of restarting when a
// child is already up.
func (c *Controller) start(ctx context.Context, name string) protocol.Response {
	p, resp := c.resolveTarget(name)
	if p == nil {
		return resp
	}

	if err := c.sup.Start(ctx, p); err != nil {
		return supervisorError(err)
	}

	c.treeMu.Lock()
	c.current = p
	c.treeMu.Unlock()
	if c.store != nil {
		c.store.SetMostRecentProfile(p.Name)
	}
	return protocol.Ok()
}

func (c *Controller) stop(ctx context.Context) protocol.Response {
	if err := c.sup.Stop(ctx); err != nil {
		return supervisorError(err)
	}
	return protocol.Ok()
}

func (c *Controller) restart(ctx context.Context) protocol.Response {
	p, resp := c.resolveTarget("")
	if p == nil {
		return resp
	}
	if err := c.sup.Restart(ctx, p); err != nil {
		return supervisorError(err)
	}
	return protocol.Ok()
}

// resolveTarget picks the profile a start or restart acts on: the named
// one if given, otherwise the current selection.
func (c *Controller) resolveTarget(name string) (*profile.Profile, protocol.Response) {
	c.treeMu.RLock()
	defer c.treeMu.RUnlock()

	if name != "" {
		p, ok := c.tree.Find(name)
		if !ok {
			return nil, protocol.Errorf(protocol.ErrProfileNotFound, "no profile named %q", name)
		}
		return p, protocol.Response{}
	}
	if c.current == nil {
		return nil, protocol.Errorf(protocol.ErrProfileNotFound,
			"no profile selected; use switch-profile first")
	}
	return c.current, protocol.Response{}
}

// reload re-reads the profile directory. On failure the old tree stays
// in place. A running child is never touched: it keeps the profile it
// was launched with.
func (c *Controller) reload(ctx context.Context) protocol.Response {
	tree, err := profile.Load(c.cfg.ProfilesDir, c.logger)
	if err != nil {
		c.logger.Error("profile reload failed, keeping previous tree", zap.Error(err))
		return protocol.Errorf(protocol.ErrTree, "%v", err)
	}

	c.treeMu.Lock()
	c.tree = tree
	if c.current != nil {
		if p, ok := tree.Find(c.current.Name); ok {
			c.current = p
		} else {
			c.logger.Warn("selected profile disappeared on reload",
				zap.String("profile", c.current.Name))
			c.current = nil
		}
	}
	count := len(tree.Active())
	c.treeMu.Unlock()

	c.logger.Info("profile tree reloaded", zap.Int("profiles", count))
	c.publish(ctx, events.EventProfilesReloaded, map[string]interface{}{
		"profiles": count,
	})
	return protocol.Ok()
}

func (c *Controller) status() protocol.Response {
	st := c.sup.Status()

	resp := protocol.Ok()
	resp.Status = &protocol.Status{
		State:     st.State.String(),
		ExitCode:  st.ExitCode,
		StartedAt: st.StartedAt,
		StoppedAt: st.StoppedAt,
	}
	// The profile field names the running child only. The remembered
	// selection travels separately, so an idle slot never claims a
	// profile is active.
	if st.State != supervisor.StateIdle {
		resp.Status.Profile = st.Profile
		resp.Status.PID = st.PID
	}
	c.treeMu.RLock()
	if c.current != nil {
		resp.Status.Selected = c.current.Name
	}
	c.treeMu.RUnlock()
	return resp
}

func (c *Controller) listProfiles() protocol.Response {
	c.treeMu.RLock()
	defer c.treeMu.RUnlock()

	resp := protocol.Ok()
	for _, p := range c.tree.Active() {
		resp.Profiles = append(resp.Profiles, protocol.ProfileInfo{
			Name:  p.Name,
			Group: p.GroupPath,
			Mode:  string(p.Config.Mode),
		})
	}
	return resp
}

func (c *Controller) logs(lines int) protocol.Response {
	if lines <= 0 {
		lines = defaultLogLines
	}

	resp := protocol.Ok()
	for _, e := range c.backlog.Last(lines) {
		resp.Log = append(resp.Log, protocol.LogLine{
			Source:    string(e.Source),
			Timestamp: e.Timestamp,
			Line:      e.Line,
		})
	}
	return resp
}

func (c *Controller) publishOk(ctx context.Context, eventType string) protocol.Response {
	c.publish(ctx, eventType, nil)
	return protocol.Ok()
}

func (c *Controller) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, events.Event{Type: eventType, Payload: payload}); err != nil {
		c.logger.Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func supervisorError(err error) protocol.Response {
	switch {
	case err == supervisor.ErrAlreadyRunning:
		return protocol.Errorf(protocol.ErrAlreadyRunning, "%v", err)
	default:
		return protocol.Errorf(protocol.ErrSupervisor, "%v", err)
	}
}
