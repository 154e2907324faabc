// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// sslaunchd supervises a single shadowsocks client process, selected
// from a directory of launch profiles and controlled over a unix
// socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/wingedpig/sslaunch/internal/app"
)

var (
	version = "0.9"
)

func main() {
	var (
		configPath  string
		profilesDir string
		socketPath  string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&profilesDir, "profiles", "", "Profile directory (overrides config)")
	flag.StringVar(&socketPath, "socket", "", "Control socket path (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("sslaunchd %s\n", version)
		os.Exit(0)
	}

	application, err := app.New(app.Options{
		ConfigPath:  configPath,
		ProfilesDir: profilesDir,
		SocketPath:  socketPath,
		Debug:       debug,
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger().Sync()
		log.Fatalf("Error: %v", err)
	}
}
