// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/singleflight"

	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/internal/plugin"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// PluginSource supplies the active plugin list when a build is not given one.
type PluginSource interface {
	Plugins() plugin.List
}

// Preparer gates app-host builds on the platform prepare step.
type Preparer interface {
	WaitOnPrepare(ctx context.Context) error
}

// Refresher tells a connected host to reload and drops its registration.
type Refresher interface {
	Refresh(role host.Role)
}

// InputTracker is told which files an artifact was built from.
type InputTracker interface {
	Track(role host.Role, files []string)
}

// PipelineConfig holds the required collaborators of a Pipeline.
type PipelineConfig struct {
	Layout  Layout
	Store   *Store
	Plugins PluginSource
	Bundler Bundler
}

// PipelineOption configures optional Pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithPreparer gates app-host builds on p.
func WithPreparer(p Preparer) PipelineOption {
	return func(pl *Pipeline) {
		pl.preparer = p
	}
}

// WithRefresher sets the collaborator told when a sim-host artifact goes stale
// after an app-host build.
func WithRefresher(r Refresher) PipelineOption {
	return func(pl *Pipeline) {
		pl.refresher = r
	}
}

// WithTracker reports each build's input files to t.
func WithTracker(t InputTracker) PipelineOption {
	return func(pl *Pipeline) {
		pl.tracker = t
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(pl *Pipeline) {
		pl.logger = l
	}
}

// Pipeline builds and caches the artifact served to each host role. At most
// one build per role runs at a time; callers arriving while one is in flight
// share its result.
type Pipeline struct {
	layout  Layout
	store   *Store
	plugins PluginSource
	bundler Bundler

	preparer  Preparer
	refresher Refresher
	tracker   InputTracker
	logger    *slog.Logger

	group singleflight.Group

	mu    sync.Mutex
	built map[host.Role]bool
}

// NewPipeline creates a build pipeline.
func NewPipeline(cfg PipelineConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		layout:  cfg.Layout,
		store:   cfg.Store,
		plugins: cfg.Plugins,
		bundler: cfg.Bundler,
		logger:  slog.Default(),
		built:   make(map[host.Role]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ArtifactPath returns the file served to role.
func (p *Pipeline) ArtifactPath(role host.Role) string {
	return p.store.ArtifactPath(role)
}

// Built reports whether role has been built successfully by this pipeline.
func (p *Pipeline) Built(role host.Role) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.built[role]
}

func (p *Pipeline) markBuilt(role host.Role) {
	p.mu.Lock()
	p.built[role] = true
	p.mu.Unlock()
}

// Build ensures role's artifact is current and returns the plugin list it was
// built from. A nil plugins uses the active plugin list.
func (p *Pipeline) Build(ctx context.Context, role host.Role, plugins *plugin.List) (plugin.List, error) {
	switch role {
	case host.AppHost:
		return p.BuildAppHost(ctx, plugins)
	case host.SimHost:
		return p.BuildSimHost(ctx, plugins)
	default:
		return plugin.List{}, oops.Code(host.CodeUnknownRole).
			With("role", role.String()).
			Errorf("unknown host role %q", role)
	}
}

// BuildAppHost builds the app-host artifact once the platform is prepared.
// If sim-host has been built and its plugin list no longer agrees, sim-host is
// refreshed.
func (p *Pipeline) BuildAppHost(ctx context.Context, plugins *plugin.List) (plugin.List, error) {
	return p.coalesce(ctx, host.AppHost, func(ctx context.Context) (plugin.List, error) {
		if p.preparer != nil {
			if err := p.preparer.WaitOnPrepare(ctx); err != nil {
				return plugin.List{}, err
			}
		}
		list := p.resolveList(plugins)
		if err := p.build(ctx, host.AppHost, list); err != nil {
			return plugin.List{}, err
		}
		p.validateSimHost(list)
		return list, nil
	})
}

// BuildSimHost builds the sim-host artifact. It never runs ahead of the first
// app-host build: until app-host has been built in this process an app-host
// build is forced first, and afterwards app-host's recorded plugin list is
// used so both artifacts agree.
func (p *Pipeline) BuildSimHost(ctx context.Context, plugins *plugin.List) (plugin.List, error) {
	return p.coalesce(ctx, host.SimHost, func(ctx context.Context) (plugin.List, error) {
		list, err := p.appHostPlugins(ctx)
		if err != nil {
			return plugin.List{}, err
		}
		if plugins != nil {
			list = plugins.Clone()
		}
		if err := p.build(ctx, host.SimHost, list); err != nil {
			return plugin.List{}, err
		}
		return list, nil
	})
}

func (p *Pipeline) resolveList(plugins *plugin.List) plugin.List {
	if plugins != nil {
		return plugins.Clone()
	}
	return p.plugins.Plugins()
}

func (p *Pipeline) appHostPlugins(ctx context.Context) (plugin.List, error) {
	if p.Built(host.AppHost) {
		d, err := p.store.Load(host.AppHost)
		if err == nil && d != nil && d.hasPlugins {
			return d.Plugins.Clone(), nil
		}
		p.logger.Warn("app-host descriptor unavailable, rebuilding app-host",
			"role", host.SimHost.String())
	}
	return p.BuildAppHost(ctx, nil)
}

// validateSimHost refreshes sim-host when its last build used a different
// plugin list than app-host just did.
func (p *Pipeline) validateSimHost(appPlugins plugin.List) {
	if !p.Built(host.SimHost) || p.refresher == nil {
		return
	}
	d, err := p.store.Load(host.SimHost)
	if err == nil && d != nil && d.hasPlugins && Equal(d.Plugins.Tree(), appPlugins.Tree()) {
		return
	}
	p.logger.Info("sim-host plugins changed, refreshing", "role", host.SimHost.String())
	p.refresher.Refresh(host.SimHost)
}

// coalesce runs fn unless a build for role is already in flight, in which case
// it waits for that build. The build itself is not canceled with ctx since
// other callers may be waiting on it.
func (p *Pipeline) coalesce(
	ctx context.Context,
	role host.Role,
	fn func(context.Context) (plugin.List, error),
) (plugin.List, error) {
	ch := p.group.DoChan(role.String(), func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return plugin.List{}, oops.With("role", role.String()).Wrap(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return plugin.List{}, res.Err
		}
		list, _ := res.Val.(plugin.List)
		return list.Clone(), nil
	}
}

// build rebuilds role's artifact from list unless the cached one is current.
func (p *Pipeline) build(ctx context.Context, role host.Role, list plugin.List) error {
	artifact := p.store.ArtifactPath(role)

	if d := p.current(role, list); d != nil {
		p.logger.Debug("existing file found and is up-to-date", "role", role.String(), "file", artifact)
		recordBuild(role, ResultCached)
		p.markBuilt(role)
		p.track(role, d.Files)
		return nil
	}

	p.logger.Info("creating", "role", role.String(), "file", artifact, "plugins", list.Len())
	start := time.Now()

	req, err := p.request(role, list)
	if err != nil {
		recordBuild(role, ResultFailed)
		return ErrBuildFailed(role, err)
	}

	files := make(map[string]int64)
	req.OnFile = func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return oops.With("file", path).Wrap(err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return oops.With("file", abs).Wrap(err)
		}
		files[abs] = info.ModTime().UnixMilli()
		return nil
	}

	err = p.store.Commit(role,
		func(w io.Writer) error {
			if err := p.bundler.Bundle(ctx, req, w); err != nil {
				return ErrBuildFailed(role, err)
			}
			return nil
		},
		func() (*Descriptor, error) {
			return NewDescriptor(list.Clone(), files), nil
		},
	)
	if err != nil {
		recordBuild(role, ResultFailed)
		return err
	}

	recordBuild(role, ResultRebuilt)
	recordBuildDuration(role, time.Since(start))
	p.markBuilt(role)
	p.track(role, files)
	p.logger.Info("built", "role", role.String(), "file", artifact, "inputs", len(files))
	return nil
}

// current returns role's descriptor if its artifact exists and matches list.
func (p *Pipeline) current(role host.Role, list plugin.List) *Descriptor {
	d, err := p.store.Current(role, list)
	if err != nil {
		errutil.LogWarn(p.logger, "ignoring unreadable cache descriptor", err, "role", role.String())
		return nil
	}
	return d
}

func (p *Pipeline) track(role host.Role, files map[string]int64) {
	if p.tracker == nil {
		return
	}
	paths := make([]string, 0, len(files))
	for f := range files {
		paths = append(paths, f)
	}
	p.tracker.Track(role, paths)
}

// request assembles the bundler input for role: the skeleton with one require
// table per bundled script kind, each plugin's contributed files, and the
// shared modules under the role's search roots.
func (p *Pipeline) request(role host.Role, list plugin.List) (Request, error) {
	modules, err := p.layout.CommonModules(role)
	if err != nil {
		return Request{}, err
	}

	var replacements []Replacement
	for _, kind := range host.BundledKinds(role) {
		var entries []string
		for _, rec := range list.Records() {
			file, ok := plugin.Contribution(rec.Dir, role, kind)
			if !ok {
				continue
			}
			expose := host.ExposeID(rec.ID, kind)
			entries = append(entries, fmt.Sprintf("'%s': require('%s')", rec.ID, expose))
			modules = append(modules, Module{File: file, Expose: expose})
		}
		replacements = append(replacements, Replacement{
			Marker: host.Marker(kind),
			Code:   strings.Join(entries, ",\n"),
		})
	}

	return Request{
		Entry:        p.layout.Skeleton(role),
		Replacements: replacements,
		Modules:      modules,
	}, nil
}
