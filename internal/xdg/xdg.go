// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package xdg provides XDG Base Directory paths for SimBridge.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "simbridge"

// ConfigFileName is the name of the configuration file inside ConfigDir.
const ConfigFileName = "simbridge.yaml"

// ConfigDir returns the XDG config directory for simbridge.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Errorf("neither XDG_CONFIG_HOME nor HOME is set")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the configuration file path used when none is
// given, and whether that file exists.
func DefaultConfigFile() (string, bool) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, ConfigFileName)
	info, err := os.Stat(path)
	return path, err == nil && !info.IsDir()
}
