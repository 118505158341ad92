// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/config"
	"github.com/simbridge/simbridge/internal/logging"
	"github.com/simbridge/simbridge/internal/server"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the simulator",
		Long: `Start the simulator: serve the prepared app and the simulation host,
build host scripts on request, and relay messages between the hosts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.BindFlags(cmd.Flags(), config.Default())
	return cmd
}

// runServeWithDeps runs the simulator until a signal arrives or ctx ends.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return oops.Wrapf(err, "set up logging")
	}

	logger.Info("starting simulator",
		"platform", cfg.Platform,
		"target", cfg.Target,
		"project_root", cfg.ProjectRoot,
	)

	sim, err := newSimulator(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sim.Close(); closeErr != nil {
			errutil.LogWarn(logger, "error closing file watcher", closeErr)
		}
	}()

	startPage, err := server.ParseStartPage(sim.paths.projectRoot)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if sim.watcher != nil {
		go func() {
			if runErr := sim.watcher.Run(ctx); runErr != nil {
				errutil.LogError(logger, "file watcher stopped", runErr)
			}
		}()
	}

	// The first app-host build waits on this; starting it now hides the
	// prepare time behind the developer opening the browser.
	go func() {
		if prepErr := sim.preparer.WaitOnPrepare(ctx); prepErr != nil && ctx.Err() == nil {
			errutil.LogError(logger, "platform prepare failed", prepErr)
		}
	}()

	var ready atomic.Bool
	handler := server.NewHandler(server.Routes{
		Builder:      sim.pipeline,
		Plugins:      sim.plugins,
		Relay:        sim.relay,
		PlatformRoot: sim.paths.platformRoot,
		SimHostRoot:  sim.paths.simHostRoot,
		Logger:       logging.Component(logger, "server"),
	})
	srv := deps.SimulatorServerFactory(cfg.Addr, handler, logger)
	srvErrChan, err := srv.Start()
	if err != nil {
		return oops.Wrapf(err, "start simulator server")
	}
	go monitorServerErrors(ctx, cancel, srvErrChan, "simulator")

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopServer(srv, "simulator")
			return oops.Wrapf(err, "start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	urls := server.HostURLs("http://"+srv.Addr()+"/", startPage)
	ready.Store(true)
	cmd.Printf("App running at %s\n", urls.App)
	cmd.Printf("Simulation host running at %s\n", urls.SimHost)
	logger.Info("simulator ready", "app_url", urls.App, "sim_host_url", urls.SimHost)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	cancel()
	stopServer(srv, "simulator")
	if obsServer != nil {
		stopServer(obsServer, "observability")
	}
	logger.Info("shutdown complete")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(s stopper, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes, or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
