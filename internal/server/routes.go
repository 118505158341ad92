// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/internal/observability"
	"github.com/simbridge/simbridge/internal/plugin"
	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/internal/transport"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// Builder produces a role's artifact on demand.
type Builder interface {
	Build(ctx context.Context, role host.Role, plugins *plugin.List) (plugin.List, error)
	ArtifactPath(role host.Role) string
}

// PluginSource returns the currently discovered plugins.
type PluginSource interface {
	Plugins() plugin.List
}

// Routes holds what the HTTP handler serves.
type Routes struct {
	Builder Builder
	Plugins PluginSource
	Relay   *relay.Relay
	// PlatformRoot is the prepared www directory served at the root.
	PlatformRoot string
	// SimHostRoot is served under /simulator/.
	SimHostRoot string
	Logger      *slog.Logger
}

// NewHandler returns the simulator's HTTP handler.
func NewHandler(rt Routes) http.Handler {
	logger := rt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, instrument)
	for _, role := range host.Roles {
		r.Get("/simulator/"+role.String()+".js", artifactHandler(rt.Builder, role, logger))
	}
	r.Get("/simulator/plugin/{id}/*", pluginHandler(rt.Plugins))
	r.Get("/socket", socketHandler(rt.Relay, logger))
	r.Handle("/simulator/*", http.StripPrefix("/simulator", http.FileServer(http.Dir(rt.SimHostRoot))))
	r.Handle("/*", http.FileServer(http.Dir(rt.PlatformRoot)))
	return r
}

// instrument counts requests by route pattern and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.RecordRequest(route, ww.Status())
	})
}

func artifactHandler(b Builder, role host.Role, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := b.Build(r.Context(), role, nil); err != nil {
			errutil.LogError(logger, "artifact build failed", err)
			http.Error(w, "build failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, b.ArtifactPath(role))
	}
}

func pluginHandler(src PluginSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		list := src.Plugins()
		dir, ok := list.Dir(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.StripPrefix("/simulator/plugin/"+id, http.FileServer(http.Dir(dir))).ServeHTTP(w, r)
	}
}

func socketHandler(rl *relay.Relay, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(w, r, logger)
		if err != nil {
			errutil.LogWarn(logger, "websocket upgrade failed", err)
			return
		}
		logger.Debug("host connected", "conn_id", conn.ID(), "remote", r.RemoteAddr)
		session := rl.NewSession(conn)
		if err := conn.Serve(r.Context(), session); err != nil {
			errutil.LogWarn(logger, "host connection ended", err)
		}
		logger.Debug("host disconnected", "conn_id", conn.ID(), "roles", session.Roles())
	}
}
