// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the messages exchanged over the sslaunchd
// control socket.
//
// The protocol is deliberately simple: a client connects to the unix
// socket, writes a single request object, and reads back a single
// response object before the connection is closed. Requests are parsed
// leniently (HJSON), so operators can issue commands by hand:
//
//	echo '{cmd: status}' | nc -U /tmp/sslaunchd.sock
//
// Responses are always strict JSON.
package protocol

import (
	"fmt"
	"time"
)

// Command names accepted in the "cmd" field of a Request.
const (
	CmdSwitchProfile = "switch-profile"
	CmdStart         = "start"
	CmdStop          = "stop"
	CmdRestart       = "restart"
	CmdStatus        = "status"
	CmdListProfiles  = "list-profiles"
	CmdLogs          = "logs"
	CmdLogViewerShow = "log-viewer-show"
	CmdLogViewerHide = "log-viewer-hide"
	CmdReload        = "reload"
	CmdQuit          = "quit"
)

// Request is the single message a client sends per connection.
type Request struct {
	Cmd string `json:"cmd"`

	// Profile names the target profile for switch-profile, and
	// optionally overrides the resumed profile for start.
	Profile string `json:"profile,omitempty"`

	// Lines limits the number of backlog lines returned by logs.
	// Zero means the server default.
	Lines int `json:"lines,omitempty"`
}

// Error codes returned in Response.Code.
const (
	ErrParse           = "PARSE_ERROR"
	ErrUnknownCommand  = "UNKNOWN_COMMAND"
	ErrProfileNotFound = "PROFILE_NOT_FOUND"
	ErrAlreadyRunning  = "ALREADY_RUNNING"
	ErrNotRunning      = "NOT_RUNNING"
	ErrSupervisor      = "SUPERVISOR_ERROR"
	ErrTree            = "TREE_ERROR"
)

// Response is the single message the server writes per connection.
// Exactly one of the payload fields is set, depending on the command.
type Response struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	Status   *Status       `json:"status,omitempty"`
	Profiles []ProfileInfo `json:"profiles,omitempty"`
	Log      []LogLine     `json:"log,omitempty"`
}

// Status describes the supervisor's view of the current child process.
// Profile is set only while a child occupies the slot; Selected carries
// the remembered selection that start would launch.
type Status struct {
	State     string    `json:"state"`
	Profile   string    `json:"profile,omitempty"`
	Selected  string    `json:"selected,omitempty"`
	PID       int       `json:"pid,omitempty"`
	ExitCode  int       `json:"exit_code"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
}

// ProfileInfo is one entry of a list-profiles response.
type ProfileInfo struct {
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
	Mode  string `json:"mode"`
}

// LogLine is one captured output line of a logs response.
type LogLine struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"ts"`
	Line      string    `json:"line"`
}

// Ok returns a bare success response.
func Ok() Response {
	return Response{OK: true}
}

// Errorf returns a failure response with the given code and a message
// built from the format and arguments.
func Errorf(code, format string, args ...interface{}) Response {
	return Response{Code: code, Error: fmt.Sprintf(format, args...)}
}
