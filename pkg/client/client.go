// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client for the sslaunchd control socket.
//
// Create a client pointing at the daemon's unix socket:
//
//	c := client.New("")  // empty path uses the default socket location
//
// Every call opens one connection, sends one request, and reads one
// response:
//
//	status, err := c.Status(ctx)
//	profiles, err := c.ListProfiles(ctx)
//	err = c.SwitchProfile(ctx, "home")
//
// Daemon-side failures are returned as *APIError values carrying the
// protocol error code:
//
//	if err := c.SwitchProfile(ctx, "ghost"); err != nil {
//	    var apiErr *client.APIError
//	    if errors.As(err, &apiErr) && apiErr.Code == protocol.ErrProfileNotFound {
//	        // ...
//	    }
//	}
//
// All methods accept a context.Context for cancellation and deadlines.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/wingedpig/sslaunch/pkg/protocol"
)

const defaultTimeout = 10 * time.Second

// APIError is a failure reported by the daemon.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to a sslaunchd control socket. It is safe for concurrent
// use; each request gets its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout, connection included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client. An empty socketPath uses DefaultSocketPath.
func New(socketPath string, opts ...Option) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	c := &Client{
		socketPath: socketPath,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultSocketPath returns the socket location sslaunchd binds when
// not configured otherwise.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "sslaunchd.sock")
	}
	return filepath.Join(os.TempDir(), "sslaunchd.sock")
}

// Do sends one raw request and returns the decoded response. A response
// with ok=false is returned as an *APIError.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	var resp protocol.Response

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return resp, fmt.Errorf("connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()
	conn.SetDeadline(deadline)

	data, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return resp, fmt.Errorf("send request: %w", err)
	}
	// Half-close so the server sees EOF and answers immediately.
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	body, err := io.ReadAll(conn)
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}

	if !resp.OK {
		return resp, &APIError{Code: resp.Code, Message: resp.Error}
	}
	return resp, nil
}

// Status returns the daemon's view of the child process.
func (c *Client) Status(ctx context.Context) (*protocol.Status, error) {
	resp, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdStatus})
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}

// ListProfiles returns all selectable profiles.
func (c *Client) ListProfiles(ctx context.Context) ([]protocol.ProfileInfo, error) {
	resp, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdListProfiles})
	if err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

// Logs returns up to lines recent output lines; zero means the server
// default.
func (c *Client) Logs(ctx context.Context, lines int) ([]protocol.LogLine, error) {
	resp, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdLogs, Lines: lines})
	if err != nil {
		return nil, err
	}
	return resp.Log, nil
}

// SwitchProfile selects a profile and (re)starts the child into it.
func (c *Client) SwitchProfile(ctx context.Context, name string) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdSwitchProfile, Profile: name})
	return err
}

// Start launches the selected profile, or the named one if given.
func (c *Client) Start(ctx context.Context, profile string) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdStart, Profile: profile})
	return err
}

// Stop stops the child process. Stopping an idle daemon is a no-op.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdStop})
	return err
}

// Restart restarts the child on the selected profile.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdRestart})
	return err
}

// Reload re-reads the profile directory.
func (c *Client) Reload(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdReload})
	return err
}

// LogViewerShow asks the daemon to announce a log viewer to any
// attached front end.
func (c *Client) LogViewerShow(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdLogViewerShow})
	return err
}

// LogViewerHide is the counterpart of LogViewerShow.
func (c *Client) LogViewerHide(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdLogViewerHide})
	return err
}

// Quit asks the daemon to shut down.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Request{Cmd: protocol.CmdQuit})
	return err
}
