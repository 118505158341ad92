// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package plugin discovers the plugins installed for a platform and locates
// the simulation sources each one contributes to the app-host and sim-host.
package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/oops"
)

// Identifiers always considered, whatever the platform has installed.
const (
	ExecPluginID        = "exec"
	EventsPluginID      = "events"
	GeolocationPluginID = "cordova-plugin-geolocation"
)

// PlatformCoreID returns the identifier of the platform's built-in handlers.
func PlatformCoreID(platform string) string {
	return platform + "-platform-core"
}

// ManagerConfig locates the directories a Manager searches.
type ManagerConfig struct {
	Platform     string
	ProjectRoot  string
	PlatformRoot string
	// BuiltinDir holds plugins shipped with the simulator.
	BuiltinDir string
	// PlatformsDir holds per-platform core scripts, one directory per platform.
	PlatformsDir string
}

// Manager discovers the active plugin set.
type Manager struct {
	cfg      ManagerConfig
	resolver *Resolver
	filter   *Filter
	logger   *slog.Logger

	mu      sync.RWMutex
	plugins List
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithFilter drops discovered plugins matching the filter.
func WithFilter(f *Filter) ManagerOption {
	return func(m *Manager) {
		m.filter = f
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a plugin manager.
func NewManager(cfg ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		resolver: NewResolver(cfg.ProjectRoot, cfg.BuiltinDir),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolver returns the resolver the manager uses.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Candidates lists every plugin identifier worth resolving, in discovery
// order: the always-defined plugins, then installed plugin directories, then
// the geolocation shim if it was not installed.
func (m *Manager) Candidates() ([]string, error) {
	ids := []string{ExecPluginID, EventsPluginID}

	pluginsDir := filepath.Join(m.cfg.PlatformRoot, "plugins")
	entries, err := os.ReadDir(pluginsDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, oops.With("dir", pluginsDir).Wrapf(err, "read installed plugins")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}

	if !slices.Contains(ids, GeolocationPluginID) {
		ids = append(ids, GeolocationPluginID)
	}
	return ids, nil
}

// Discover rebuilds the active plugin list. Candidates that resolve to no
// source directory are dropped silently.
func (m *Manager) Discover(_ context.Context) (List, error) {
	ids, err := m.Candidates()
	if err != nil {
		return List{}, err
	}

	var list List
	for _, id := range ids {
		if m.filter.Excluded(id) {
			m.logger.Debug("plugin excluded by filter", "plugin", id)
			continue
		}
		dir, ok := m.resolver.Resolve(id)
		if !ok {
			continue
		}
		list.Set(id, dir)
	}

	if m.cfg.Platform != "" {
		coreDir := filepath.Join(m.cfg.PlatformsDir, m.cfg.Platform)
		if info, err := os.Stat(coreDir); err == nil && info.IsDir() {
			list.Set(PlatformCoreID(m.cfg.Platform), coreDir)
		}
	}

	m.mu.Lock()
	m.plugins = list
	m.mu.Unlock()

	m.logger.Info("discovered plugins",
		"platform", m.cfg.Platform,
		"count", list.Len())

	return list.Clone(), nil
}

// Plugins returns a copy of the most recently discovered list.
func (m *Manager) Plugins() List {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plugins.Clone()
}
