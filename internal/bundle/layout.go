// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/simbridge/simbridge/internal/host"
)

// Layout locates the runtime sources shipped with the simulator.
type Layout struct {
	AssetsRoot string
	// SimHostRoot holds the sim-host skeleton. Defaults to AssetsRoot/sim-host.
	SimHostRoot string
}

// Skeleton returns the runtime entry script for role.
func (l Layout) Skeleton(role host.Role) string {
	if role == host.SimHost {
		root := l.SimHostRoot
		if root == "" {
			root = filepath.Join(l.AssetsRoot, "sim-host")
		}
		return filepath.Join(root, "sim-host.js")
	}
	return filepath.Join(l.AssetsRoot, "app-host", "app-host.js")
}

// SearchRoots returns the directories whose scripts are exposed to role's
// skeleton by file name.
func (l Layout) SearchRoots(role host.Role) []string {
	return []string{
		filepath.Join(l.AssetsRoot, "modules", role.String()),
		filepath.Join(l.AssetsRoot, "modules", "common"),
		filepath.Join(l.AssetsRoot, "third-party"),
	}
}

// CommonModules lists the .js files directly under role's search roots, each
// exposed under its base name without extension. Missing roots are skipped.
func (l Layout) CommonModules(role host.Role) ([]Module, error) {
	var modules []Module
	for _, root := range l.SearchRoots(role) {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || filepath.Ext(name) != ".js" {
				continue
			}
			modules = append(modules, Module{
				File:   filepath.Join(root, name),
				Expose: strings.TrimSuffix(name, ".js"),
			})
		}
	}
	return modules, nil
}
