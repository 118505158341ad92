// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/internal/plugin"
)

// Descriptor is the persisted record guarding one role's artifact: the plugin
// list it was built from and the modification time, in epoch milliseconds, of
// every file that went into it.
type Descriptor struct {
	Plugins plugin.List      `json:"plugins"`
	Files   map[string]int64 `json:"files"`

	hasPlugins bool
}

// NewDescriptor creates a descriptor for a completed build.
func NewDescriptor(plugins plugin.List, files map[string]int64) *Descriptor {
	if files == nil {
		files = map[string]int64{}
	}
	return &Descriptor{Plugins: plugins, Files: files, hasPlugins: true}
}

// UnmarshalJSON records whether the plugins field was present, so a
// descriptor without one is treated as stale rather than as an empty list.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		Plugins json.RawMessage  `json:"plugins"`
		Files   map[string]int64 `json:"files"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return oops.Wrap(err)
	}
	*d = Descriptor{Files: raw.Files}
	if len(raw.Plugins) == 0 || string(raw.Plugins) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Plugins, &d.Plugins); err != nil {
		return err
	}
	d.hasPlugins = true
	return nil
}

// Store keeps each role's artifact and descriptor in one directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding artifacts and descriptors.
func (s *Store) Dir() string {
	return s.dir
}

// ArtifactPath returns the bundled script served to role.
func (s *Store) ArtifactPath(role host.Role) string {
	return filepath.Join(s.dir, role.String()+".js")
}

// DescriptorPath returns the cache descriptor for role.
func (s *Store) DescriptorPath(role host.Role) string {
	return filepath.Join(s.dir, role.String()+".json")
}

// Load reads role's descriptor. It returns nil without error when none exists.
func (s *Store) Load(role host.Role) (*Descriptor, error) {
	path := s.DescriptorPath(role)
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the store directory and a role name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errCacheRead(path, err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errCacheRead(path, err)
	}
	return &d, nil
}

// Current returns role's descriptor when its artifact exists and was built
// from plugins and from input files that are all unchanged since. It returns
// nil without error when the cache is stale or missing.
func (s *Store) Current(role host.Role, plugins plugin.List) (*Descriptor, error) {
	if _, err := os.Stat(s.ArtifactPath(role)); err != nil {
		return nil, nil
	}
	d, err := s.Load(role)
	if err != nil || d == nil {
		return nil, err
	}
	if !d.Matches(plugins) {
		return nil, nil
	}
	return d, nil
}

// Matches reports whether the descriptor was built from plugins and every
// recorded input still has its recorded modification time.
func (d *Descriptor) Matches(plugins plugin.List) bool {
	if !d.hasPlugins || !Equal(d.Plugins.Tree(), plugins.Tree()) {
		return false
	}
	for file, mtime := range d.Files {
		info, err := os.Stat(file)
		if err != nil || info.ModTime().UnixMilli() != mtime {
			return false
		}
	}
	return true
}

// Commit replaces role's artifact with the output of write and then records d
// as its descriptor. The old descriptor is removed before the new artifact is
// moved into place, so a failure part way leaves a missing descriptor (forcing
// a rebuild) rather than one that vouches for the wrong artifact. If write
// fails nothing on disk changes.
func (s *Store) Commit(role host.Role, write func(io.Writer) error, d func() (*Descriptor, error)) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return errCacheWrite(s.dir, err)
	}

	artifact := s.ArtifactPath(role)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(artifact)+".tmp-*")
	if err != nil {
		return errCacheWrite(artifact, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errCacheWrite(artifact, err)
	}

	desc, err := d()
	if err != nil {
		return err
	}

	descPath := s.DescriptorPath(role)
	if err := os.Remove(descPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errCacheWrite(descPath, err)
	}
	if err := os.Rename(tmpPath, artifact); err != nil {
		return errCacheWrite(artifact, err)
	}
	committed = true

	return s.Save(role, desc)
}

// Save writes role's descriptor atomically.
func (s *Store) Save(role host.Role, d *Descriptor) error {
	path := s.DescriptorPath(role)
	data, err := json.Marshal(d)
	if err != nil {
		return errCacheWrite(path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temporary sibling and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errCacheWrite(path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errCacheWrite(path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errCacheWrite(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errCacheWrite(path, err)
	}
	return nil
}
