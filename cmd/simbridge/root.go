// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/config"
	"github.com/simbridge/simbridge/internal/logging"
	"github.com/simbridge/simbridge/internal/xdg"
)

// serviceName tags every log record.
const serviceName = "simbridge"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the SimBridge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simbridge",
		Short: "SimBridge - a browser-based mobile app simulator",
		Long: `SimBridge runs a hybrid mobile application in a desktop browser. It
serves the app next to a simulation host that answers the app's platform
calls, and relays messages between the two.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/simbridge/simbridge.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewBuildCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

// configPath returns the --config value, or the default file when it exists.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if path, ok := xdg.DefaultConfigFile(); ok {
		return path
	}
	return ""
}

// loadConfig merges the config file with cmd's flags and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.Wrapf(err, "invalid configuration")
	}
	return cfg, nil
}

// setupLogging configures the default slog logger from cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(serviceName, version, cfg.LogFormat, level), nil
}
