// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package server provides the simulator's HTTP surface: host artifacts built
// on request, plugin and page files, and the relay's WebSocket endpoint.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

// Server serves the simulator on one address.
type Server struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	cancel     context.CancelFunc
	running    atomic.Bool
}

// New creates a server for handler. Start it with Start.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start begins serving. The returned channel receives a serve error, if any,
// and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("simulator server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	// Host connections outlive Shutdown's idle-connection tracking; canceling
	// the base context closes them.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("simulator server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("simulator server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down and closes host connections.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown_simulator_server").Wrap(err)
	}
	s.logger.Info("simulator server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
