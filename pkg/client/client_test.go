// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sslaunch/internal/control"
	"github.com/wingedpig/sslaunch/pkg/protocol"
)

// startDaemonSocket runs a real control server with a canned handler.
func startDaemonSocket(t *testing.T, handler control.Handler) string {
	t.Helper()

	// Keep socket paths short enough for sun_path.
	dir, err := os.MkdirTemp("", "ctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := dir + "/d.sock"

	srv := control.New(control.Config{SocketPath: path}, handler, nil)
	require.NoError(t, srv.Listen())
	go srv.Serve(context.Background())
	t.Cleanup(func() { srv.Close() })

	return path
}

func TestStatus(t *testing.T) {
	path := startDaemonSocket(t, func(ctx context.Context, req protocol.Request) protocol.Response {
		resp := protocol.Ok()
		resp.Status = &protocol.Status{State: "running", Profile: "home", PID: 42}
		return resp
	})

	c := New(path)
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "home", st.Profile)
	assert.Equal(t, 42, st.PID)
}

func TestRequestsCarryCommandAndArgs(t *testing.T) {
	var got []protocol.Request
	path := startDaemonSocket(t, func(ctx context.Context, req protocol.Request) protocol.Response {
		got = append(got, req)
		return protocol.Ok()
	})

	c := New(path)
	ctx := context.Background()
	require.NoError(t, c.SwitchProfile(ctx, "work"))
	_, err := c.Logs(ctx, 25)
	require.NoError(t, err)
	require.NoError(t, c.Quit(ctx))

	require.Len(t, got, 3)
	assert.Equal(t, protocol.CmdSwitchProfile, got[0].Cmd)
	assert.Equal(t, "work", got[0].Profile)
	assert.Equal(t, protocol.CmdLogs, got[1].Cmd)
	assert.Equal(t, 25, got[1].Lines)
	assert.Equal(t, protocol.CmdQuit, got[2].Cmd)
}

func TestDaemonErrorBecomesAPIError(t *testing.T) {
	path := startDaemonSocket(t, func(ctx context.Context, req protocol.Request) protocol.Response {
		return protocol.Errorf(protocol.ErrProfileNotFound, `no profile named "ghost"`)
	})

	c := New(path)
	err := c.SwitchProfile(context.Background(), "ghost")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, protocol.ErrProfileNotFound, apiErr.Code)
	assert.Contains(t, apiErr.Message, "ghost")
}

func TestConnectFailure(t *testing.T) {
	c := New(t.TempDir()+"/nothing.sock", WithTimeout(time.Second))
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect")
}

func TestContextCancellation(t *testing.T) {
	path := startDaemonSocket(t, func(ctx context.Context, req protocol.Request) protocol.Response {
		time.Sleep(500 * time.Millisecond)
		return protocol.Ok()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(path)
	_, err := c.Status(ctx)
	assert.Error(t, err)
}

func TestDefaultSocketPathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/sslaunchd.sock", DefaultSocketPath())

	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Contains(t, DefaultSocketPath(), "sslaunchd.sock")
}
