// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/host"
)

// changeOps are the file operations that make an artifact stale.
const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher refreshes a host when a file its artifact was built from changes.
// It does not rebuild; the next artifact request does that.
type Watcher struct {
	fs        *fsnotify.Watcher
	refresher Refresher
	logger    *slog.Logger

	mu    sync.Mutex
	files map[string]host.Role
	dirs  map[string]int
}

// NewWatcher creates a watcher that reports changes to r.
func NewWatcher(r Refresher, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.Wrapf(err, "create file watcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:        fs,
		refresher: r,
		logger:    logger,
		files:     make(map[string]host.Role),
		dirs:      make(map[string]int),
	}, nil
}

// Track replaces the set of files watched for role.
func (w *Watcher) Track(role host.Role, files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.untrackLocked(role)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		if _, ok := w.files[abs]; ok {
			continue
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fs.Add(dir); err != nil {
				w.logger.Warn("cannot watch directory", "dir", dir, "error", err)
				continue
			}
		}
		w.dirs[dir]++
		w.files[abs] = role
	}
}

// Tracked reports the number of files watched for role.
func (w *Watcher) Tracked(role host.Role) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, r := range w.files {
		if r == role {
			n++
		}
	}
	return n
}

func (w *Watcher) untrackLocked(role host.Role) {
	for f, r := range w.files {
		if r != role {
			continue
		}
		delete(w.files, f)
		dir := filepath.Dir(f)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			_ = w.fs.Remove(dir)
		}
	}
}

// Run delivers change notifications until ctx is canceled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&changeOps == 0 {
		return
	}

	w.mu.Lock()
	role, ok := w.files[filepath.Clean(event.Name)]
	if ok {
		w.untrackLocked(role)
	}
	w.mu.Unlock()

	if !ok {
		return
	}
	w.logger.Info("input changed, refreshing", "role", role.String(), "file", event.Name, "op", event.Op.String())
	w.refresher.Refresh(role)
}

// Close stops watching. Run returns once the underlying channels close.
func (w *Watcher) Close() error {
	return oops.Wrap(w.fs.Close())
}
