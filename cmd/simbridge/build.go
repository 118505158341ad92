// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/config"
	"github.com/simbridge/simbridge/internal/host"
)

// NewBuildCmd creates the build subcommand.
func NewBuildCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a host script once",
		Long: `Build the script served to one host role, reusing the cached copy when
its plugins and source files are unchanged, and print the plugins it holds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuildWithDeps(cmd.Context(), cmd, role, nil)
		},
	}
	cmd.Flags().StringVar(&role, "role", host.AppHost.String(), "host role to build (app-host or sim-host)")
	config.BindFlags(cmd.Flags(), config.Default())
	return cmd
}

// runBuildWithDeps builds one role's artifact.
// If deps is nil, default implementations are used.
func runBuildWithDeps(ctx context.Context, cmd *cobra.Command, roleName string, deps *Deps) error {
	deps = deps.withDefaults()

	role, err := host.ParseRole(roleName)
	if err != nil {
		return err
	}
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

	plugins, err := sim.pipeline.Build(ctx, role, nil)
	if err != nil {
		return err
	}

	cmd.Printf("Built %s: %s\n", role, sim.pipeline.ArtifactPath(role))
	for _, id := range plugins.IDs() {
		cmd.Printf("  %s\n", id)
	}
	return nil
}
