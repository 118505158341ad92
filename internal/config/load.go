// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// BindFlags registers a flag for every configuration key on fs, using the
// values in defaults.
func BindFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("platform", defaults.Platform, "platform whose prepared www directory is served")
	fs.String("target", defaults.Target, "browser the hosts are meant to open in")
	fs.String("addr", defaults.Addr, "HTTP listen address")
	fs.String("project-root", defaults.ProjectRoot, "project directory containing config.xml")
	fs.String("platform-root", defaults.PlatformRoot, "prepared platform www directory")
	fs.String("assets-root", defaults.AssetsRoot, "directory holding host skeletons and shared modules")
	fs.String("sim-host-root", defaults.SimHostRoot, "directory holding the sim-host page and skeleton")
	fs.String("metrics-addr", defaults.MetricsAddr, "metrics and health HTTP address (empty disables)")
	fs.String("log-format", defaults.LogFormat, "log format (json or text)")
	fs.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	fs.String("prepare-command", defaults.PrepareCommand, "command run before the first app-host build (empty disables)")
	fs.StringSlice("exclude-plugins", defaults.ExcludePlugins, "glob patterns of plugin ids to leave out")
	fs.Bool("watch", defaults.Watch, "refresh a host when an input of its artifact changes")
}

// Load builds a Config from the YAML file at path and the flags in fs. Flags
// the user set override the file; the file overrides flag defaults. An empty
// path skips the file, and a nil fs skips the flags. The result is not
// validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "read config file")
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "parse config file")
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, oops.Code(CodeInvalid).Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode config")
	}
	return &cfg, nil
}
