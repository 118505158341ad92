// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
)

// Setting keys.
const (
	KeyPlatform     = "platform"
	KeyProjectRoot  = "project-root"
	KeyPlatformRoot = "platform-root"
	KeyAssetsRoot   = "assets-root"
	KeySimHostRoot  = "sim-host-root"
)

// Keys that may only be set once per process.
var setOnce = map[string]bool{
	KeyProjectRoot: true,
}

// SimulationDirName is the project subdirectory holding generated artifacts.
const SimulationDirName = "simulation"

// Settings holds the values components read while the simulator runs. Reading
// a key that was never set is an error, as is setting a set-once key twice.
type Settings struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSettings returns an empty settings store.
func NewSettings() *Settings {
	return &Settings{values: make(map[string]string)}
}

// SettingsFrom seeds a store from a validated configuration.
func SettingsFrom(cfg *Config) (*Settings, error) {
	s := NewSettings()
	for key, value := range map[string]string{
		KeyPlatform:     cfg.Platform,
		KeyProjectRoot:  cfg.ProjectRoot,
		KeyPlatformRoot: cfg.ResolvedPlatformRoot(),
		KeyAssetsRoot:   cfg.AssetsRoot,
		KeySimHostRoot:  cfg.ResolvedSimHostRoot(),
	} {
		if err := s.Set(key, value); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Set stores value under key.
func (s *Settings) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists && setOnce[key] {
		return oops.Code(CodeAlreadySet).With("key", key).Errorf("can't reinitialize %s", key)
	}
	s.values[key] = value
	return nil
}

// Get returns the value stored under key.
func (s *Settings) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", oops.Code(CodeNotSet).With("key", key).Errorf("cannot get %s as it has not been initialized", key)
	}
	return value, nil
}

// GetAll returns the values stored under keys, in order. It fails on the
// first key that was never set.
func (s *Settings) GetAll(keys ...string) ([]string, error) {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// SimulationDir returns <project-root>/simulation, creating it if needed.
func (s *Settings) SimulationDir() (string, error) {
	root, err := s.Get(KeyProjectRoot)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, SimulationDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", oops.With("dir", dir).Wrapf(err, "create simulation directory")
	}
	return dir, nil
}
