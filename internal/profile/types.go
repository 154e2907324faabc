// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package profile implements the on-disk profile tree: discovery of
// launch profiles and groups under a root directory, and the launch
// configuration each profile carries.
package profile

import (
	"fmt"
	"net"
)

// Node is a single entry of the profile tree, either a *Profile leaf or
// a *Group. The set of implementations is closed.
type Node interface {
	// NodeName returns the display name of this node.
	NodeName() string
	// IsIgnored reports whether this node sits in an ignored subtree.
	IsIgnored() bool

	node()
}

// Group aggregates profiles and subgroups for organizational display.
// It carries no launch configuration of its own.
type Group struct {
	Name     string
	Ignored  bool
	Children []Node
}

func (g *Group) NodeName() string { return g.Name }
func (g *Group) IsIgnored() bool  { return g.Ignored }
func (g *Group) node()            {}

// Profile is a named leaf describing how to launch the backend proxy
// executable.
type Profile struct {
	// Name is the display name, unique across the whole tree.
	Name string
	// Dir is the profile's own directory.
	Dir string
	// GroupPath is the slash-joined chain of group names above this
	// profile, excluding the tree root. Empty for top-level profiles.
	GroupPath string
	// Ignored marks profiles inside ignored subtrees. They stay in the
	// tree for display but are excluded from lookup and listing.
	Ignored bool
	Config  Config
}

func (p *Profile) NodeName() string { return p.Name }
func (p *Profile) IsIgnored() bool  { return p.Ignored }
func (p *Profile) node()            {}

// WorkDir returns the working directory for the child process: the
// descriptor's pwd if set, otherwise the profile directory itself.
func (p *Profile) WorkDir() string {
	if p.Config.Pwd != "" {
		return p.Config.Pwd
	}
	return p.Dir
}

// Mode selects how the backend executable is configured.
type Mode string

const (
	// ModeConfigFile launches the backend with an arbitrary config file.
	ModeConfigFile Mode = "config-file"
	// ModeProxy launches the backend as a local proxy.
	ModeProxy Mode = "proxy"
	// ModeTun launches the backend in tun mode.
	ModeTun Mode = "tun"
)

// HostPort is an address tuple. It is encoded on disk as a two-element
// array: ["example.org", 443].
type HostPort struct {
	Host string
	Port uint16
}

// String formats the address for the backend command line, bracketing
// IPv6 hosts.
func (hp HostPort) String() string {
	if ip := net.ParseIP(hp.Host); ip != nil && ip.To4() == nil {
		return fmt.Sprintf("[%s]:%d", hp.Host, hp.Port)
	}
	return fmt.Sprintf("%s:%d", hp.Host, hp.Port)
}
