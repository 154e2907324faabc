// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"encoding/json"
	"fmt"
)

// Descriptor file names recognized inside a profile directory.
const (
	DescriptorName    = "profile.hjson"
	DescriptorAltName = "profile.json"
)

// IgnoreMarkerName is the sentinel file that deactivates a directory
// and its entire subtree.
const IgnoreMarkerName = ".ssignore"

// Config is the parsed form of a profile descriptor file.
type Config struct {
	Mode Mode `json:"mode"`

	// Common optional fields.
	DisplayName string `json:"display_name"`
	Pwd         string `json:"pwd"`
	BinPath     string `json:"bin_path"`

	// config-file mode.
	ConfigPath string `json:"path"`

	// proxy and tun modes.
	LocalAddr     *HostPort `json:"local_addr"`
	ServerAddr    *HostPort `json:"server_addr"`
	Password      string    `json:"password"`
	EncryptMethod string    `json:"encrypt_method"`

	// tun mode only.
	IfName string `json:"if_name"`
	IfAddr string `json:"if_addr"`

	// ExtraArgs are appended verbatim after the generated arguments so
	// users can override any of them.
	ExtraArgs []string `json:"extra_args"`
}

// UnmarshalJSON decodes the on-disk ["host", port] tuple form.
func (hp *HostPort) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("address must be a [host, port] array: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("address must have exactly 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &hp.Host); err != nil {
		return fmt.Errorf("address host: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &hp.Port); err != nil {
		return fmt.Errorf("address port: %w", err)
	}
	return nil
}

// MarshalJSON encodes the tuple form back out.
func (hp HostPort) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{hp.Host, hp.Port})
}

// Validate checks mode-specific mandatory fields.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeConfigFile:
		if c.ConfigPath == "" {
			return fmt.Errorf("config-file mode requires path")
		}
	case ModeProxy, ModeTun:
		if c.LocalAddr == nil {
			return fmt.Errorf("%s mode requires local_addr", c.Mode)
		}
		if c.ServerAddr == nil {
			return fmt.Errorf("%s mode requires server_addr", c.Mode)
		}
		if c.Password == "" {
			return fmt.Errorf("%s mode requires password", c.Mode)
		}
		if c.EncryptMethod == "" {
			return fmt.Errorf("%s mode requires encrypt_method", c.Mode)
		}
	case "":
		return fmt.Errorf("missing mode")
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// LaunchArgs builds the deterministic argument vector for the backend
// executable: mode-specific flags first, then extra_args verbatim.
func (c *Config) LaunchArgs() []string {
	var args []string

	switch c.Mode {
	case ModeConfigFile:
		args = append(args, "--config", c.ConfigPath)
	case ModeProxy:
		args = append(args, c.connectArgs()...)
	case ModeTun:
		args = append(args, c.connectArgs()...)
		args = append(args, "--protocol", "tun")
		if c.IfName != "" {
			args = append(args, "--tun-interface-name", c.IfName)
		}
		if c.IfAddr != "" {
			args = append(args, "--tun-interface-address", c.IfAddr)
		}
	}

	args = append(args, c.ExtraArgs...)
	return args
}

func (c *Config) connectArgs() []string {
	return []string{
		"--local-addr", c.LocalAddr.String(),
		"--server-addr", c.ServerAddr.String(),
		"--password", c.Password,
		"--encrypt-method", c.EncryptMethod,
	}
}
