// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
	"go.uber.org/zap"
)

// DuplicateNameError is returned when two profiles anywhere in the tree
// share a display name. Names must be unique tree-wide because commands
// switch by name alone.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate profile name %q", e.Name)
}

// Tree is the in-memory model of the profile directory.
type Tree struct {
	Root   *Group
	byName map[string]*Profile
}

// Load builds a Tree from the directory rooted at root.
//
// A directory containing a descriptor file is a profile; any other
// directory with at least one profile descendant is a group; anything
// else is skipped with a warning. Directories containing the ignore
// marker are kept in the tree but marked ignored, subtree included.
// Symbolic links are not traversed. Load fails atomically: a duplicate
// name, unreadable directory or malformed descriptor yields an error
// and no tree.
func Load(root string, logger *zap.Logger) (*Tree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve profile root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat profile root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profile root %s is not a directory", abs)
	}

	l := &treeLoader{
		logger: logger,
		byName: make(map[string]*Profile),
	}
	node, err := l.loadDir(abs, filepath.Base(abs), "", true, false)
	if err != nil {
		return nil, err
	}

	var rootGroup *Group
	switch n := node.(type) {
	case *Group:
		rootGroup = n
	case *Profile:
		// The root itself is a single profile directory.
		rootGroup = &Group{Name: filepath.Base(abs), Children: []Node{n}}
	default:
		logger.Warn("profile root contains no profiles", zap.String("dir", abs))
		rootGroup = &Group{Name: filepath.Base(abs)}
	}

	return &Tree{Root: rootGroup, byName: l.byName}, nil
}

// Empty returns a tree with no profiles, used when the daemon must come
// up even though the profile directory could not be loaded.
func Empty() *Tree {
	return &Tree{
		Root:   &Group{Name: "profiles"},
		byName: make(map[string]*Profile),
	}
}

// Find returns the named profile, excluding ignored subtrees.
func (t *Tree) Find(name string) (*Profile, bool) {
	p, ok := t.byName[name]
	if !ok || p.Ignored {
		return nil, false
	}
	return p, true
}

// Active returns all selectable profiles in tree order, excluding
// ignored subtrees. The slice is rebuilt on each call; callers may
// iterate it as often as they like.
func (t *Tree) Active() []*Profile {
	var out []*Profile
	walk(t.Root, func(p *Profile) {
		if !p.Ignored {
			out = append(out, p)
		}
	})
	return out
}

// All returns every profile including ignored ones, in tree order.
func (t *Tree) All() []*Profile {
	var out []*Profile
	walk(t.Root, func(p *Profile) { out = append(out, p) })
	return out
}

func walk(n Node, fn func(*Profile)) {
	switch v := n.(type) {
	case *Profile:
		fn(v)
	case *Group:
		for _, child := range v.Children {
			walk(child, fn)
		}
	}
}

type treeLoader struct {
	logger *zap.Logger
	byName map[string]*Profile
}

// loadDir returns the node for one directory, or nil when the directory
// is skipped. groupPath is the slash-joined chain of group names above
// this directory, used for display; the root itself never contributes
// to it.
func (l *treeLoader) loadDir(dir, name, groupPath string, root, ignored bool) (Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile directory: %w", err)
	}

	descriptor := ""
	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink != 0 {
			l.logger.Warn("not traversing symlink in profile tree",
				zap.String("path", filepath.Join(dir, entry.Name())))
			continue
		}
		switch entry.Name() {
		case IgnoreMarkerName:
			ignored = true
		case DescriptorName:
			descriptor = entry.Name()
		case DescriptorAltName:
			if descriptor == "" {
				descriptor = entry.Name()
			}
		}
	}

	if descriptor != "" {
		return l.loadProfile(dir, filepath.Join(dir, descriptor), name, groupPath, ignored)
	}

	childPath := name
	if groupPath != "" {
		childPath = groupPath + "/" + name
	}
	if root {
		childPath = ""
	}

	var children []Node
	for _, entry := range entries {
		if !entry.IsDir() || entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		child, err := l.loadDir(filepath.Join(dir, entry.Name()), entry.Name(), childPath, false, ignored)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}

	if len(children) == 0 {
		l.logger.Warn("skipping directory with no profiles", zap.String("dir", dir))
		return nil, nil
	}

	return &Group{Name: name, Ignored: ignored, Children: children}, nil
}

func (l *treeLoader) loadProfile(dir, descriptorPath, dirName, groupPath string, ignored bool) (Node, error) {
	cfg, err := parseDescriptor(descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", dir, err)
	}

	name := cfg.DisplayName
	if name == "" {
		name = dirName
	}
	if _, exists := l.byName[name]; exists {
		return nil, &DuplicateNameError{Name: name}
	}

	p := &Profile{
		Name:      name,
		Dir:       dir,
		GroupPath: groupPath,
		Ignored:   ignored,
		Config:    *cfg,
	}
	l.byName[name] = p
	return p, nil
}

// parseDescriptor reads one profile descriptor file. HJSON is parsed to
// an intermediate map and round-tripped through JSON for struct-level
// type checking, matching the daemon config loader.
func parseDescriptor(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert descriptor: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
