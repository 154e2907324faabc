// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sslaunch/internal/backlog"
	"github.com/wingedpig/sslaunch/internal/events"
	"github.com/wingedpig/sslaunch/internal/profile"
)

// eventRecorder collects published event types in order.
type eventRecorder struct {
	bus *events.MemoryBus

	mu    sync.Mutex
	types []string
}

func newEventRecorder(t *testing.T) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{bus: events.NewMemoryBus(events.MemoryBusConfig{}, nil)}
	_, err := rec.bus.Subscribe("proxy.*", func(ctx context.Context, e events.Event) error {
		rec.mu.Lock()
		rec.types = append(rec.types, e.Type)
		rec.mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { rec.bus.Close() })
	return rec
}

func (r *eventRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

func (r *eventRecorder) waitFor(t *testing.T, eventType string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, typ := range r.seen() {
			if typ == eventType {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %s not published, saw %v", eventType, r.seen())
}

func testProfile(t *testing.T, name, bin string, args ...string) *profile.Profile {
	t.Helper()
	return &profile.Profile{
		Name: name,
		Dir:  t.TempDir(),
		Config: profile.Config{
			BinPath:   bin,
			ExtraArgs: args,
		},
	}
}

func newTestSupervisor(t *testing.T, rec *eventRecorder) (*Supervisor, *backlog.Backlog) {
	t.Helper()
	log := backlog.New(100)
	var bus events.Bus
	if rec != nil {
		bus = rec.bus
	}
	sup := New(Config{StopTimeout: 2 * time.Second}, log, bus, nil)
	t.Cleanup(func() { sup.Stop(context.Background()) })
	return sup, log
}

func TestStartCapturesOutputAndExits(t *testing.T) {
	rec := newEventRecorder(t)
	sup, log := newTestSupervisor(t, rec)

	p := testProfile(t, "echo", "/bin/sh", "-c", "echo hello; echo oops >&2")
	require.NoError(t, sup.Start(context.Background(), p))

	rec.waitFor(t, events.EventProxyExited)

	status := sup.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, 0, status.ExitCode)
	assert.Equal(t, "echo", status.Profile)
	assert.False(t, status.StoppedAt.IsZero())

	bySource := map[backlog.Source][]string{}
	for _, e := range log.All() {
		bySource[e.Source] = append(bySource[e.Source], e.Line)
	}
	assert.Contains(t, bySource[backlog.SourceStdout], "hello")
	assert.Contains(t, bySource[backlog.SourceStderr], "oops")

	assert.Equal(t, []string{events.EventProxyLaunched, events.EventProxyExited}, rec.seen())
}

func TestStartAlreadyRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, nil)

	require.NoError(t, sup.Start(context.Background(), testProfile(t, "sleeper", "sleep", "10")))

	err := sup.Start(context.Background(), testProfile(t, "other", "sleep", "10"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopIdleIsNoop(t *testing.T) {
	sup, _ := newTestSupervisor(t, nil)
	assert.NoError(t, sup.Stop(context.Background()))
	assert.Equal(t, StateIdle, sup.Status().State)
}

func TestStopPublishesStoppedNotExited(t *testing.T) {
	rec := newEventRecorder(t)
	sup, _ := newTestSupervisor(t, rec)

	require.NoError(t, sup.Start(context.Background(), testProfile(t, "sleeper", "sleep", "60")))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, sup.Stop(context.Background()))
	rec.waitFor(t, events.EventProxyStopped)

	assert.Equal(t, StateIdle, sup.Status().State)
	assert.NotContains(t, rec.seen(), events.EventProxyExited)
}

// A child that writes a burst of output and exits immediately must not
// lose any of it to the exit path closing the pipes.
func TestFastExitRetainsAllOutput(t *testing.T) {
	const lines = 5000

	log := backlog.New(lines + 100)
	sup := New(Config{StopTimeout: 2 * time.Second}, log, nil, nil)
	t.Cleanup(func() { sup.Stop(context.Background()) })

	p := testProfile(t, "burst", "/bin/sh", "-c", fmt.Sprintf("seq 1 %d", lines))

	for iter := 0; iter < 3; iter++ {
		log.Clear()
		require.NoError(t, sup.Start(context.Background(), p))
		require.Eventually(t, func() bool {
			return sup.Status().State == StateIdle
		}, 5*time.Second, 10*time.Millisecond)

		entries := log.All()
		require.Len(t, entries, lines, "iteration %d lost output", iter)
		for i, e := range entries {
			require.Equal(t, strconv.Itoa(i+1), e.Line, "iteration %d", iter)
		}
	}
}

func TestNonZeroExitCode(t *testing.T) {
	rec := newEventRecorder(t)
	sup, _ := newTestSupervisor(t, rec)

	p := testProfile(t, "failing", "/bin/sh", "-c", "exit 3")
	require.NoError(t, sup.Start(context.Background(), p))
	rec.waitFor(t, events.EventProxyExited)

	assert.Equal(t, 3, sup.Status().ExitCode)
}

func TestLaunchFailure(t *testing.T) {
	rec := newEventRecorder(t)
	sup, _ := newTestSupervisor(t, rec)

	err := sup.Start(context.Background(), testProfile(t, "ghost", "/nonexistent/sslocal"))
	require.Error(t, err)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "ghost", launchErr.Profile)

	rec.waitFor(t, events.EventProxyLaunchFailed)
	assert.Equal(t, StateIdle, sup.Status().State)

	// The slot stays usable after a failed launch.
	require.NoError(t, sup.Start(context.Background(), testProfile(t, "echo", "echo", "ok")))
	rec.waitFor(t, events.EventProxyExited)
}

func TestRestartReplacesChild(t *testing.T) {
	rec := newEventRecorder(t)
	sup, _ := newTestSupervisor(t, rec)

	require.NoError(t, sup.Start(context.Background(), testProfile(t, "first", "sleep", "60")))
	time.Sleep(50 * time.Millisecond)
	firstPID := sup.Status().PID

	require.NoError(t, sup.Restart(context.Background(), testProfile(t, "second", "sleep", "60")))

	status := sup.Status()
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, "second", status.Profile)
	assert.NotEqual(t, firstPID, status.PID)

	rec.waitFor(t, events.EventProxyStopped)
	assert.Equal(t, []string{
		events.EventProxyLaunched,
		events.EventProxyStopped,
		events.EventProxyLaunched,
	}, rec.seen())
}

func TestStopEscalatesToSIGKILL(t *testing.T) {
	log := backlog.New(100)
	sup := New(Config{StopTimeout: 100 * time.Millisecond}, log, nil, nil)

	p := testProfile(t, "stubborn", "/bin/sh", "-c", `trap "" TERM; sleep 60`)
	require.NoError(t, sup.Start(context.Background(), p))
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, sup.Stop(context.Background()))

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, StateIdle, sup.Status().State)
}

func TestStopCancelledContextKills(t *testing.T) {
	sup, _ := newTestSupervisor(t, nil)

	p := testProfile(t, "stubborn", "/bin/sh", "-c", `trap "" TERM; sleep 60`)
	require.NoError(t, sup.Start(context.Background(), p))
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, sup.Stop(ctx))
	assert.Equal(t, StateIdle, sup.Status().State)
}

func TestParseSignal(t *testing.T) {
	sig, err := ParseSignal("")
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGTERM, sig)

	sig, err = ParseSignal("SIGINT")
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGINT, sig)

	_, err = ParseSignal("SIGRTMIN")
	assert.Error(t, err)
}
