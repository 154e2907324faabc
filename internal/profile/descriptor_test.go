// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPortDecode(t *testing.T) {
	var hp HostPort
	require.NoError(t, json.Unmarshal([]byte(`["example.org", 8388]`), &hp))
	assert.Equal(t, "example.org", hp.Host)
	assert.Equal(t, uint16(8388), hp.Port)
	assert.Equal(t, "example.org:8388", hp.String())
}

func TestHostPortDecodeErrors(t *testing.T) {
	var hp HostPort
	assert.Error(t, json.Unmarshal([]byte(`"example.org:8388"`), &hp))
	assert.Error(t, json.Unmarshal([]byte(`["example.org"]`), &hp))
	assert.Error(t, json.Unmarshal([]byte(`["example.org", 8388, 1]`), &hp))
	assert.Error(t, json.Unmarshal([]byte(`["example.org", "8388"]`), &hp))
	assert.Error(t, json.Unmarshal([]byte(`["example.org", 70000]`), &hp))
}

func TestHostPortStringBracketsIPv6(t *testing.T) {
	assert.Equal(t, "[::1]:1080", HostPort{Host: "::1", Port: 1080}.String())
	assert.Equal(t, "127.0.0.1:1080", HostPort{Host: "127.0.0.1", Port: 1080}.String())
}

func TestValidateConfigFile(t *testing.T) {
	c := Config{Mode: ModeConfigFile}
	assert.Error(t, c.Validate())
	c.ConfigPath = "/etc/ss/config.json"
	assert.NoError(t, c.Validate())
}

func TestValidateProxy(t *testing.T) {
	c := Config{
		Mode:          ModeProxy,
		LocalAddr:     &HostPort{Host: "127.0.0.1", Port: 1080},
		ServerAddr:    &HostPort{Host: "example.org", Port: 8388},
		Password:      "hunter2",
		EncryptMethod: "aes-256-gcm",
	}
	assert.NoError(t, c.Validate())

	for _, strip := range []func(*Config){
		func(c *Config) { c.LocalAddr = nil },
		func(c *Config) { c.ServerAddr = nil },
		func(c *Config) { c.Password = "" },
		func(c *Config) { c.EncryptMethod = "" },
	} {
		broken := c
		strip(&broken)
		assert.Error(t, broken.Validate())
	}
}

func TestValidateMode(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Mode: "vpn"}).Validate())
}

func TestLaunchArgsConfigFile(t *testing.T) {
	c := Config{Mode: ModeConfigFile, ConfigPath: "/etc/ss/config.json"}
	assert.Equal(t, []string{"--config", "/etc/ss/config.json"}, c.LaunchArgs())
}

func TestLaunchArgsProxy(t *testing.T) {
	c := Config{
		Mode:          ModeProxy,
		LocalAddr:     &HostPort{Host: "127.0.0.1", Port: 1080},
		ServerAddr:    &HostPort{Host: "example.org", Port: 8388},
		Password:      "hunter2",
		EncryptMethod: "aes-256-gcm",
	}
	assert.Equal(t, []string{
		"--local-addr", "127.0.0.1:1080",
		"--server-addr", "example.org:8388",
		"--password", "hunter2",
		"--encrypt-method", "aes-256-gcm",
	}, c.LaunchArgs())
}

func TestLaunchArgsTun(t *testing.T) {
	c := Config{
		Mode:          ModeTun,
		LocalAddr:     &HostPort{Host: "127.0.0.1", Port: 1080},
		ServerAddr:    &HostPort{Host: "::1", Port: 8388},
		Password:      "hunter2",
		EncryptMethod: "aes-256-gcm",
		IfName:        "tun0",
		IfAddr:        "10.0.0.1/24",
	}
	args := c.LaunchArgs()
	assert.Contains(t, args, "--protocol")
	assert.Contains(t, args, "[::1]:8388")
	assert.Contains(t, args, "tun0")
	assert.Contains(t, args, "10.0.0.1/24")
}

func TestLaunchArgsTunOptionalFlagsOmitted(t *testing.T) {
	c := Config{
		Mode:          ModeTun,
		LocalAddr:     &HostPort{Host: "127.0.0.1", Port: 1080},
		ServerAddr:    &HostPort{Host: "example.org", Port: 8388},
		Password:      "hunter2",
		EncryptMethod: "aes-256-gcm",
	}
	args := c.LaunchArgs()
	assert.NotContains(t, args, "--tun-interface-name")
	assert.NotContains(t, args, "--tun-interface-address")
}

func TestLaunchArgsExtraArgsLast(t *testing.T) {
	c := Config{
		Mode:       ModeConfigFile,
		ConfigPath: "/etc/ss/config.json",
		ExtraArgs:  []string{"-v", "--fast-open"},
	}
	args := c.LaunchArgs()
	require.Len(t, args, 4)
	assert.Equal(t, []string{"-v", "--fast-open"}, args[2:])
}
