// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"context"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/config"
)

// NewPluginsCmd creates the plugins subcommand.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the plugins the simulator would load",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPluginsWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.BindFlags(cmd.Flags(), config.Default())
	return cmd
}

// runPluginsWithDeps prints every discovered plugin and its source directory.
func runPluginsWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	sim, err := newSimulator(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sim.Close() }()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, rec := range sim.plugins.Plugins().Records() {
		if _, err := tw.Write([]byte(rec.ID + "\t" + rec.Dir + "\n")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
