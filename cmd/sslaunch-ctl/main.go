// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// sslaunch-ctl is a command-line tool for controlling a running
// sslaunchd daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/sslaunch/pkg/client"
)

var (
	version    = "0.9"
	jsonOutput = false

	apiClient *client.Client
)

func main() {
	socketPath := os.Getenv("SSLAUNCH_SOCKET")

	// Parse global flags and filter them out.
	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	apiClient = client.New(socketPath)

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	cmd := filteredArgs[0]
	args := filteredArgs[1:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus()
	case "list":
		err = cmdList()
	case "switch":
		err = cmdSwitch(args)
	case "start":
		err = cmdStart(args)
	case "stop":
		err = cmdStop()
	case "restart":
		err = cmdRestart()
	case "logs":
		err = cmdLogs(args)
	case "reload":
		err = cmdReload()
	case "show":
		err = apiClient.LogViewerShow(context.Background())
	case "hide":
		err = apiClient.LogViewerHide(context.Background())
	case "quit":
		err = cmdQuit()
	case "examples":
		printExamples()
	case "version", "-v", "--version":
		fmt.Printf("sslaunch-ctl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sslaunch-ctl - Control a running sslaunchd daemon

Usage:
  sslaunch-ctl [-json] <command> [arguments]

Global Flags:
  -json              Output in JSON format

Environment:
  SSLAUNCH_SOCKET    Control socket path (default: $XDG_RUNTIME_DIR/sslaunchd.sock)

Commands:
  status             Show the child process state
  list               List available profiles
  switch <profile>   Switch to a profile, restarting the child if needed
  start [profile]    Start the selected (or named) profile
  stop               Stop the child process
  restart            Restart the child on the current profile
  logs [n]           Show the last n captured output lines (default 100)
  reload             Re-read the profile directory
  show               Ask an attached front end to show the log viewer
  hide               Ask an attached front end to hide the log viewer
  quit               Shut the daemon down
  examples           Show raw socket usage without this tool
  version            Show version`)
}

// printExamples documents the wire protocol for people driving the
// socket by hand.
func printExamples() {
	fmt.Printf(`The daemon accepts one request per connection on its unix socket.
Requests may be written in relaxed JSON, so no tooling is required:

  echo '{cmd: status}'                        | nc -U %[1]s
  echo '{cmd: list-profiles}'                 | nc -U %[1]s
  echo '{cmd: switch-profile, profile: home}' | nc -U %[1]s
  echo '{cmd: logs, lines: 50}'               | nc -U %[1]s
  echo '{cmd: quit}'                          | nc -U %[1]s

The response is a single JSON object terminated by a newline.
`, client.DefaultSocketPath())
}

func cmdStatus() error {
	st, err := apiClient.Status(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(st)
	}

	profile := st.Profile
	if profile == "" {
		profile = "-"
	}
	fmt.Printf("%-10s %-20s %-8s %s\n", "STATE", "PROFILE", "PID", "SINCE")
	fmt.Println(strings.Repeat("-", 56))

	pid := "-"
	since := "-"
	switch st.State {
	case "running", "stopping":
		pid = strconv.Itoa(st.PID)
		since = st.StartedAt.Format(time.RFC3339)
	default:
		if !st.StoppedAt.IsZero() {
			since = fmt.Sprintf("exit %d at %s", st.ExitCode, st.StoppedAt.Format(time.RFC3339))
		}
	}
	fmt.Printf("%-10s %-20s %-8s %s\n", st.State, profile, pid, since)
	if st.Selected != "" && st.Selected != st.Profile {
		fmt.Printf("selected: %s\n", st.Selected)
	}
	return nil
}

func cmdList() error {
	profiles, err := apiClient.ListProfiles(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(profiles)
	}

	if len(profiles) == 0 {
		fmt.Println("No profiles found")
		return nil
	}

	fmt.Printf("%-24s %-20s %s\n", "PROFILE", "GROUP", "MODE")
	fmt.Println(strings.Repeat("-", 56))
	for _, p := range profiles {
		group := p.Group
		if group == "" {
			group = "-"
		}
		fmt.Printf("%-24s %-20s %s\n", p.Name, group, p.Mode)
	}
	return nil
}

func cmdSwitch(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sslaunch-ctl switch <profile>")
	}
	if err := apiClient.SwitchProfile(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Switched to %s\n", args[0])
	return nil
}

func cmdStart(args []string) error {
	profile := ""
	if len(args) > 0 {
		profile = args[0]
	}
	if err := apiClient.Start(context.Background(), profile); err != nil {
		return err
	}
	fmt.Println("Started")
	return nil
}

func cmdStop() error {
	if err := apiClient.Stop(context.Background()); err != nil {
		return err
	}
	fmt.Println("Stopped")
	return nil
}

func cmdRestart() error {
	if err := apiClient.Restart(context.Background()); err != nil {
		return err
	}
	fmt.Println("Restarted")
	return nil
}

func cmdLogs(args []string) error {
	lines := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("usage: sslaunch-ctl logs [lines]")
		}
		lines = n
	}

	log, err := apiClient.Logs(context.Background(), lines)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(log)
	}

	for _, line := range log {
		fmt.Printf("%s [%s] %s\n", line.Timestamp.Format("15:04:05.000"), line.Source, line.Line)
	}
	return nil
}

func cmdReload() error {
	if err := apiClient.Reload(context.Background()); err != nil {
		return err
	}
	fmt.Println("Profiles reloaded")
	return nil
}

func cmdQuit() error {
	if err := apiClient.Quit(context.Background()); err != nil {
		return err
	}
	fmt.Println("Daemon shutting down")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
