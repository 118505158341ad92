// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package plugin

import (
	"os"
	"path/filepath"

	"github.com/simbridge/simbridge/internal/host"
)

// resolveOrder is the order roles are tried when locating a plugin's sources.
var resolveOrder = []host.Role{host.SimHost, host.AppHost}

// Resolver locates the directory holding a plugin's simulation sources. It
// only reads the file system and holds no mutable state.
type Resolver struct {
	projectRoot string
	builtinDir  string
}

// NewResolver creates a resolver that searches the project's installed
// plugins before the built-in plugins directory.
func NewResolver(projectRoot, builtinDir string) *Resolver {
	return &Resolver{
		projectRoot: projectRoot,
		builtinDir:  builtinDir,
	}
}

// Resolve returns the source directory of pluginID. The boolean is false when
// the plugin contributes no file to either host.
func (r *Resolver) Resolve(pluginID string) (string, bool) {
	for _, role := range resolveOrder {
		if dir, ok := r.resolveForRole(pluginID, role); ok {
			return dir, true
		}
	}
	return "", false
}

func (r *Resolver) resolveForRole(pluginID string, role host.Role) (string, bool) {
	for _, f := range host.ContributedFiles(role) {
		if dir, ok := r.sourceDir(pluginID, f.Name); ok {
			return dir, true
		}
	}
	return "", false
}

// sourceDir checks the project location, then the built-in location, for file.
func (r *Resolver) sourceDir(pluginID, file string) (string, bool) {
	candidates := []string{
		filepath.Join(r.projectRoot, "plugins", pluginID, "src", "simulation"),
		filepath.Join(r.builtinDir, pluginID),
	}
	for _, dir := range candidates {
		if isFile(filepath.Join(dir, file)) {
			return dir, true
		}
	}
	return "", false
}

// Contribution returns the path of the file a plugin rooted at dir contributes
// for kind, if it exists.
func Contribution(dir string, role host.Role, kind host.ScriptKind) (string, bool) {
	name := host.FileName(role, kind)
	if name == "" {
		return "", false
	}
	path := filepath.Join(dir, name)
	if !isFile(path) {
		return "", false
	}
	return path, true
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
