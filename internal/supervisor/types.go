// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// State is the lifecycle state of the single child process slot.
type State int

const (
	// StateIdle means no child process exists.
	StateIdle State = iota
	// StateLaunching means a spawn is in flight.
	StateLaunching
	// StateRunning means the child is alive.
	StateRunning
	// StateStopping means a stop was requested and the child has not
	// exited yet.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Status is a point-in-time snapshot of the child slot.
type Status struct {
	State     State
	Profile   string
	PID       int
	ExitCode  int
	StartedAt time.Time
	StoppedAt time.Time
}

// ErrAlreadyRunning is returned by Start when the slot is occupied.
var ErrAlreadyRunning = errors.New("a child process is already running")

// LaunchError wraps a failure to spawn the child process.
type LaunchError struct {
	Profile string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch profile %q: %v", e.Profile, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ParseSignal maps a configured signal name to the syscall signal used
// for graceful stops.
func ParseSignal(name string) (syscall.Signal, error) {
	switch name {
	case "", "SIGTERM":
		return syscall.SIGTERM, nil
	case "SIGINT":
		return syscall.SIGINT, nil
	case "SIGHUP":
		return syscall.SIGHUP, nil
	case "SIGKILL":
		return syscall.SIGKILL, nil
	default:
		return 0, fmt.Errorf("unknown signal: %s", name)
	}
}
