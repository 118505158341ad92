// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/bundle"
	"github.com/simbridge/simbridge/internal/config"
	"github.com/simbridge/simbridge/internal/logging"
	"github.com/simbridge/simbridge/internal/plugin"
	"github.com/simbridge/simbridge/internal/prepare"
	"github.com/simbridge/simbridge/internal/relay"
)

// paths are the run-time locations the simulator reads from its settings.
type paths struct {
	platform     string
	projectRoot  string
	platformRoot string
	assetsRoot   string
	simHostRoot  string
}

func pathsFrom(settings *config.Settings) (paths, error) {
	v, err := settings.GetAll(
		config.KeyPlatform,
		config.KeyProjectRoot,
		config.KeyPlatformRoot,
		config.KeyAssetsRoot,
		config.KeySimHostRoot,
	)
	if err != nil {
		return paths{}, err
	}
	return paths{platform: v[0], projectRoot: v[1], platformRoot: v[2], assetsRoot: v[3], simHostRoot: v[4]}, nil
}

// simulator is the process-wide state shared by every connection and request.
type simulator struct {
	cfg      *config.Config
	settings *config.Settings
	paths    paths
	plugins  *plugin.Manager
	preparer *prepare.Preparer
	relay    *relay.Relay
	pipeline *bundle.Pipeline
	// watcher is nil unless cfg.Watch is set.
	watcher *bundle.Watcher
}

// newSimulator wires the simulator's components and runs the first plugin
// discovery.
func newSimulator(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*simulator, error) {
	settings, err := config.SettingsFrom(cfg)
	if err != nil {
		return nil, err
	}
	simDir, err := settings.SimulationDir()
	if err != nil {
		return nil, err
	}
	p, err := pathsFrom(settings)
	if err != nil {
		return nil, err
	}

	filter, err := plugin.NewFilter(cfg.ExcludePlugins)
	if err != nil {
		return nil, err
	}
	manager := plugin.NewManager(plugin.ManagerConfig{
		Platform:     p.platform,
		ProjectRoot:  p.projectRoot,
		PlatformRoot: p.platformRoot,
		BuiltinDir:   filepath.Join(p.assetsRoot, "plugins"),
		PlatformsDir: filepath.Join(p.assetsRoot, "platforms"),
	}, plugin.WithFilter(filter), plugin.WithLogger(logging.Component(logger, "plugin")))
	if _, err := manager.Discover(ctx); err != nil {
		return nil, oops.Wrapf(err, "discover plugins")
	}

	rl := relay.New(relay.WithLogger(logging.Component(logger, "relay")))

	preparer := prepare.New(prepare.Config{
		Command:     cfg.PrepareCommand,
		ProjectRoot: p.projectRoot,
		Platform:    p.platform,
	},
		prepare.WithRunner(deps.PrepareRunner),
		prepare.WithAfterHook(func(ctx context.Context) error {
			_, err := manager.Discover(ctx)
			return err
		}),
		prepare.WithLogger(logging.Component(logger, "prepare")),
	)

	opts := []bundle.PipelineOption{
		bundle.WithPreparer(preparer),
		bundle.WithRefresher(rl),
		bundle.WithLogger(logging.Component(logger, "bundle")),
	}
	var watcher *bundle.Watcher
	if cfg.Watch {
		watcher, err = bundle.NewWatcher(rl, logging.Component(logger, "watcher"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, bundle.WithTracker(watcher))
	}

	pipeline := bundle.NewPipeline(bundle.PipelineConfig{
		Layout: bundle.Layout{
			AssetsRoot:  p.assetsRoot,
			SimHostRoot: p.simHostRoot,
		},
		Store:   bundle.NewStore(simDir),
		Plugins: manager,
		Bundler: deps.Bundler,
	}, opts...)

	return &simulator{
		cfg:      cfg,
		settings: settings,
		paths:    p,
		plugins:  manager,
		preparer: preparer,
		relay:    rl,
		pipeline: pipeline,
		watcher:  watcher,
	}, nil
}

// Close releases the file watcher, if any.
func (s *simulator) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
