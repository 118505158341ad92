// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package config loads simulator configuration from a YAML file and command
// line flags, and holds the run-time values other components read.
package config

import (
	"path/filepath"
	"slices"

	"github.com/samber/oops"
)

// Error codes for configuration failures.
const (
	CodeNotSet     = "CONFIG_NOT_SET"
	CodeAlreadySet = "CONFIG_ALREADY_SET"
	CodeInvalid    = "CONFIG_INVALID"
)

// Default values.
const (
	DefaultPlatform       = "browser"
	DefaultTarget         = "chrome"
	DefaultAddr           = "127.0.0.1:8000"
	DefaultLogFormat      = "json"
	DefaultLogLevel       = "info"
	DefaultPrepareCommand = "cordova prepare"
)

// Config is the simulator configuration. Field names double as YAML keys and
// flag names.
type Config struct {
	Platform       string   `koanf:"platform" json:"platform,omitempty" jsonschema:"description=Platform whose prepared www directory is served,default=browser"`
	Target         string   `koanf:"target" json:"target,omitempty" jsonschema:"description=Browser the app and sim-host are meant to open in,default=chrome"`
	Addr           string   `koanf:"addr" json:"addr,omitempty" jsonschema:"description=HTTP listen address,default=127.0.0.1:8000"`
	ProjectRoot    string   `koanf:"project-root" json:"project-root,omitempty" jsonschema:"description=Project directory containing config.xml"`
	PlatformRoot   string   `koanf:"platform-root" json:"platform-root,omitempty" jsonschema:"description=Prepared platform www directory (default: <project-root>/platforms/<platform>/www)"`
	AssetsRoot     string   `koanf:"assets-root" json:"assets-root,omitempty" jsonschema:"description=Directory holding the host skeletons and shared modules"`
	SimHostRoot    string   `koanf:"sim-host-root" json:"sim-host-root,omitempty" jsonschema:"description=Directory holding the sim-host page and skeleton (default: <assets-root>/sim-host)"`
	MetricsAddr    string   `koanf:"metrics-addr" json:"metrics-addr,omitempty" jsonschema:"description=Metrics and health HTTP address; empty disables"`
	LogFormat      string   `koanf:"log-format" json:"log-format,omitempty" jsonschema:"enum=json,enum=text,default=json"`
	LogLevel       string   `koanf:"log-level" json:"log-level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	PrepareCommand string   `koanf:"prepare-command" json:"prepare-command,omitempty" jsonschema:"description=Command run with the platform appended before the first app-host build; empty disables"`
	ExcludePlugins []string `koanf:"exclude-plugins" json:"exclude-plugins,omitempty" jsonschema:"description=Glob patterns of plugin ids to leave out"`
	Watch          bool     `koanf:"watch" json:"watch,omitempty" jsonschema:"description=Refresh a host when an input of its artifact changes"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Platform:       DefaultPlatform,
		Target:         DefaultTarget,
		Addr:           DefaultAddr,
		LogFormat:      DefaultLogFormat,
		LogLevel:       DefaultLogLevel,
		PrepareCommand: DefaultPrepareCommand,
	}
}

var (
	logFormats = []string{"json", "text"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Platform == "":
		return invalid("platform", "platform is required")
	case c.Addr == "":
		return invalid("addr", "addr is required")
	case c.ProjectRoot == "":
		return invalid("project-root", "project-root is required")
	case c.AssetsRoot == "":
		return invalid("assets-root", "assets-root is required")
	case !slices.Contains(logFormats, c.LogFormat):
		return invalid("log-format", "log-format must be 'json' or 'text', got %q", c.LogFormat)
	case !slices.Contains(logLevels, c.LogLevel):
		return invalid("log-level", "log-level must be one of %v, got %q", logLevels, c.LogLevel)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalid).With("key", key).Errorf(format, args...)
}

// ResolvedPlatformRoot returns PlatformRoot or its default under the project.
func (c *Config) ResolvedPlatformRoot() string {
	if c.PlatformRoot != "" {
		return c.PlatformRoot
	}
	return filepath.Join(c.ProjectRoot, "platforms", c.Platform, "www")
}

// ResolvedSimHostRoot returns SimHostRoot or its default under the assets.
func (c *Config) ResolvedSimHostRoot() string {
	if c.SimHostRoot != "" {
		return c.SimHostRoot
	}
	return filepath.Join(c.AssetsRoot, "sim-host")
}
