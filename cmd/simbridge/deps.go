// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/simbridge/simbridge/internal/bundle"
	"github.com/simbridge/simbridge/internal/observability"
	"github.com/simbridge/simbridge/internal/prepare"
	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/internal/server"
)

// Deps contains injectable dependencies for the simulator commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PrepareRunner runs the platform prepare command.
	// Default: prepare.ExecRunner
	PrepareRunner prepare.Runner

	// Bundler assembles host artifacts.
	// Default: bundle.NewConcatBundler
	Bundler bundle.Bundler

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with build and relay metrics
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// SimulatorServerFactory creates the simulator HTTP server.
	// Default: server.New
	SimulatorServerFactory func(addr string, handler http.Handler, logger *slog.Logger) SimulatorServer
}

// withDefaults fills every nil field of d.
func (d *Deps) withDefaults() *Deps {
	if d == nil {
		d = &Deps{}
	}
	if d.PrepareRunner == nil {
		d.PrepareRunner = prepare.ExecRunner{}
	}
	if d.Bundler == nil {
		d.Bundler = bundle.NewConcatBundler()
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, bundle.RegisterMetrics, relay.RegisterMetrics)
		}
	}
	if d.SimulatorServerFactory == nil {
		d.SimulatorServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) SimulatorServer {
			return server.New(addr, handler, logger)
		}
	}
	return d
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// SimulatorServer interface wraps the methods used from server.Server.
type SimulatorServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
