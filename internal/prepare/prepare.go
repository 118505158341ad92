// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package prepare runs the platform prepare step that copies installed plugins
// into the platform tree before the first app-host build.
package prepare

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/sync/singleflight"
)

// Error codes for prepare failures.
const (
	CodePrepareFailed    = "PREPARE_FAILED"
	CodePlatformMismatch = "PREPARE_PLATFORM_MISMATCH"
)

// Runner executes the prepare command.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands as local processes.
type ExecRunner struct{}

// Run executes name with args in dir. Combined output is attached to the
// error on failure.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // command comes from operator configuration
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return oops.With("command", name).
			With("output", strings.TrimSpace(out.String())).
			Wrap(err)
	}
	return nil
}

// Config configures a Preparer.
type Config struct {
	// Command is split on whitespace; the platform is appended as the final
	// argument. An empty command skips the process and only runs the hooks.
	Command     string
	ProjectRoot string
	Platform    string
}

// Option configures a Preparer.
type Option func(*Preparer)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(p *Preparer) {
		p.runner = r
	}
}

// WithAfterHook runs fn after every successful prepare, before waiters are
// released. Plugin re-discovery hangs off this.
func WithAfterHook(fn func(context.Context) error) Option {
	return func(p *Preparer) {
		p.after = append(p.after, fn)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Preparer) {
		p.logger = l
	}
}

// Preparer runs one platform prepare at a time. Callers that ask while a
// prepare for the same platform is running share its outcome.
type Preparer struct {
	cfg    Config
	runner Runner
	after  []func(context.Context) error
	logger *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	pending  string
	flight   uint64 // keys the singleflight call for pending
	prepared bool
}

// New creates a Preparer.
func New(cfg Config, opts ...Option) *Preparer {
	p := &Preparer{
		cfg:    cfg,
		runner: ExecRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepared reports whether a prepare has completed successfully.
func (p *Preparer) Prepared() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepared
}

// Prepare runs the prepare step for platform, or joins the one in flight.
// Asking for a different platform while one is running is an error.
func (p *Preparer) Prepare(ctx context.Context, platform string) error {
	p.mu.Lock()
	if p.pending != "" && p.pending != platform {
		pending := p.pending
		p.mu.Unlock()
		return oops.Code(CodePlatformMismatch).
			With("platform", platform).
			With("pending", pending).
			Errorf("cannot prepare %s while a prepare for %s is pending", platform, pending)
	}
	p.pending = platform
	// Joining under mu keeps a caller from attaching to a call that has
	// already released pending: a finished call has moved flight on.
	ch := p.group.DoChan(strconv.FormatUint(p.flight, 10), func() (any, error) {
		err := p.run(context.WithoutCancel(ctx), platform)
		p.mu.Lock()
		p.pending = ""
		p.flight++
		if err == nil {
			p.prepared = true
		}
		p.mu.Unlock()
		return nil, err
	})
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return oops.With("platform", platform).Wrap(ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

// WaitOnPrepare returns once the configured platform has been prepared at
// least once, running the prepare if needed.
func (p *Preparer) WaitOnPrepare(ctx context.Context) error {
	if p.Prepared() {
		return nil
	}
	return p.Prepare(ctx, p.cfg.Platform)
}

func (p *Preparer) run(ctx context.Context, platform string) error {
	fields := strings.Fields(p.cfg.Command)
	if len(fields) > 0 {
		args := append(fields[1:], platform)
		p.logger.Info("preparing platform", "platform", platform, "command", strings.Join(append([]string{fields[0]}, args...), " "))
		if err := p.runner.Run(ctx, p.cfg.ProjectRoot, fields[0], args...); err != nil {
			return oops.Code(CodePrepareFailed).
				With("platform", platform).
				Wrapf(err, "prepare %s", platform)
		}
	}
	for _, fn := range p.after {
		if err := fn(ctx); err != nil {
			return oops.Code(CodePrepareFailed).
				With("platform", platform).
				Wrapf(err, "after prepare %s", platform)
		}
	}
	p.logger.Debug("platform prepared", "platform", platform)
	return nil
}
