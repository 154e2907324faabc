// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns the single backend child process: spawning a
// profile, capturing its output into the log backlog, and stopping it
// gracefully with signal escalation.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	ps "github.com/mitchellh/go-ps"
	"go.uber.org/zap"

	"github.com/wingedpig/sslaunch/internal/backlog"
	"github.com/wingedpig/sslaunch/internal/events"
	"github.com/wingedpig/sslaunch/internal/profile"
)

const defaultStopTimeout = 10 * time.Second

// Config holds the supervisor knobs from the daemon config.
type Config struct {
	// BinLookup is the executable used when a profile does not name its
	// own bin_path. Resolved through PATH at spawn time.
	BinLookup string
	// StopTimeout bounds the graceful stop before SIGKILL escalation.
	StopTimeout time.Duration
	// StopSignal is sent to the child's process group on stop.
	StopSignal syscall.Signal
}

// Supervisor manages the one child process slot. All lifecycle
// operations are serialized; Status can be read at any time.
type Supervisor struct {
	cfg     Config
	backlog *backlog.Backlog
	bus     events.Bus
	logger  *zap.Logger

	// opMu serializes Start/Stop/Restart so a restart is atomic with
	// respect to other lifecycle calls.
	opMu sync.Mutex

	mu            sync.RWMutex
	state         State
	profileName   string
	cmd           *exec.Cmd
	pid           int
	exitCode      int
	startedAt     time.Time
	stoppedAt     time.Time
	stopRequested bool
	waitDone      chan struct{}
	readers       sync.WaitGroup
}

// New creates a supervisor with an empty child slot.
func New(cfg Config, log *backlog.Backlog, bus events.Bus, logger *zap.Logger) *Supervisor {
	if cfg.BinLookup == "" {
		cfg.BinLookup = "sslocal"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.StopSignal == 0 {
		cfg.StopSignal = syscall.SIGTERM
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:     cfg,
		backlog: log,
		bus:     bus,
		logger:  logger,
		state:   StateIdle,
	}
}

// Start spawns the child for the given profile. The slot must be idle;
// callers wanting replace semantics use Restart.
func (s *Supervisor) Start(ctx context.Context, p *profile.Profile) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start(ctx, p)
}

// Stop terminates the running child and waits for it to exit, output
// readers included. Stopping an idle slot is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop(ctx)
}

// Restart stops any running child and starts the given profile. No
// other lifecycle operation can interleave between the two halves.
func (s *Supervisor) Restart(ctx context.Context, p *profile.Profile) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stop(ctx); err != nil {
		return err
	}
	return s.start(ctx, p)
}

// Status returns a snapshot of the child slot.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		State:     s.state,
		Profile:   s.profileName,
		PID:       s.pid,
		ExitCode:  s.exitCode,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}
}

func (s *Supervisor) start(ctx context.Context, p *profile.Profile) error {
	s.mu.Lock()

	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateLaunching
	s.profileName = p.Name
	s.mu.Unlock()

	bin := p.Config.BinPath
	if bin == "" {
		bin = s.cfg.BinLookup
	}
	args := p.Config.LaunchArgs()

	cmd := exec.Command(bin, args...)
	cmd.Dir = p.WorkDir()
	cmd.Env = os.Environ()

	// New process group so signals reach the child's own children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.launchFailed(ctx, p.Name, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.launchFailed(ctx, p.Name, fmt.Errorf("stderr pipe: %w", err))
	}

	s.logger.Info("launching profile",
		zap.String("profile", p.Name),
		zap.String("bin", bin),
		zap.Strings("args", args),
		zap.String("workdir", cmd.Dir))

	if err := cmd.Start(); err != nil {
		return s.launchFailed(ctx, p.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.stoppedAt = time.Time{}
	s.exitCode = 0
	s.stopRequested = false
	s.state = StateRunning
	s.waitDone = make(chan struct{})
	s.readers.Add(2)
	s.mu.Unlock()

	go s.captureOutput(stdout, backlog.SourceStdout)
	go s.captureOutput(stderr, backlog.SourceStderr)
	go s.waitForExit(cmd, p.Name)

	s.publish(ctx, events.EventProxyLaunched, map[string]interface{}{
		"profile": p.Name,
		"pid":     cmd.Process.Pid,
	})
	return nil
}

func (s *Supervisor) launchFailed(ctx context.Context, name string, err error) error {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Error("launch failed", zap.String("profile", name), zap.Error(err))
	s.publish(ctx, events.EventProxyLaunchFailed, map[string]interface{}{
		"profile": name,
		"error":   err.Error(),
	})
	return &LaunchError{Profile: name, Err: err}
}

func (s *Supervisor) stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.stopRequested = true
	cmd := s.cmd
	waitDone := s.waitDone
	pid := s.pid
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	s.logger.Info("stopping child",
		zap.Int("pid", pid),
		zap.String("signal", s.cfg.StopSignal.String()))

	// Signal the whole process group.
	syscall.Kill(-pid, s.cfg.StopSignal)

	select {
	case <-waitDone:
	case <-time.After(s.cfg.StopTimeout):
		s.logger.Warn("stop timeout, escalating to SIGKILL", zap.Int("pid", pid))
		syscall.Kill(-pid, syscall.SIGKILL)
		s.confirmKilled(pid)
		<-waitDone
	case <-ctx.Done():
		syscall.Kill(-pid, syscall.SIGKILL)
		<-waitDone
	}

	return nil
}

// confirmKilled polls the process table until the child disappears.
// A child that survives SIGKILL is stuck in the kernel; log it rather
// than hang.
func (s *Supervisor) confirmKilled(pid int) {
	for i := 0; i < 20; i++ {
		proc, err := ps.FindProcess(pid)
		if err != nil || proc == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.logger.Warn("child still present after SIGKILL", zap.Int("pid", pid))
}

func (s *Supervisor) captureOutput(r io.Reader, source backlog.Source) {
	defer s.readers.Done()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")

			// Truncate very long lines (>1MB) to prevent memory issues.
			const maxLineLen = 1024 * 1024
			if len(line) > maxLineLen {
				line = line[:maxLineLen] + "... [truncated]"
			}
			s.backlog.Append(source, line)
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("output read error",
					zap.String("source", string(source)), zap.Error(err))
			}
			return
		}
	}
}

func (s *Supervisor) waitForExit(cmd *exec.Cmd, name string) {
	// Drain the pipes before calling Wait: Wait closes the pipe read
	// ends, and a fast child would race the readers out of whatever
	// output is still buffered. The readers see EOF once the child
	// exits, so this never blocks past the child's lifetime.
	s.readers.Wait()

	err := cmd.Wait()

	s.mu.Lock()
	s.stoppedAt = time.Now()
	wasStopRequested := s.stopRequested

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	s.exitCode = exitCode
	s.state = StateIdle
	s.cmd = nil
	s.pid = 0
	s.stopRequested = false
	waitDone := s.waitDone
	s.mu.Unlock()

	// Publish before releasing waiters so a stop-then-start sequence
	// observes the stopped event ahead of the next launched event.
	// Exit event handlers must not call back into lifecycle methods.
	if wasStopRequested {
		s.logger.Info("child stopped", zap.String("profile", name), zap.Int("code", exitCode))
		s.publish(context.Background(), events.EventProxyStopped, map[string]interface{}{
			"profile": name,
			"code":    exitCode,
		})
	} else {
		s.logger.Info("child exited on its own", zap.String("profile", name), zap.Int("code", exitCode))
		s.publish(context.Background(), events.EventProxyExited, map[string]interface{}{
			"profile": name,
			"code":    exitCode,
		})
	}

	close(waitDone)
}

func (s *Supervisor) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}
