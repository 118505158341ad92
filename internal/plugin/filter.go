// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package plugin

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Filter excludes plugin identifiers that match any of a set of glob patterns.
//
// Patterns use gobwas/glob syntax with '.' as the separator, so
// "cordova-plugin-*" matches "cordova-plugin-camera" and "com.acme.*" does
// not match "com.acme.tools.debug". The zero value excludes nothing.
type Filter struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// NewFilter compiles the exclude patterns. All patterns must be valid.
func NewFilter(patterns []string) (*Filter, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for i, p := range patterns {
		if p == "" {
			return nil, oops.Code("CONFIG_INVALID").
				With("index", i).
				Errorf("exclude pattern %d is empty", i)
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("index", i).
				With("pattern", p).
				Wrapf(err, "invalid exclude pattern %q", p)
		}
		compiled = append(compiled, compiledPattern{pattern: p, glob: g})
	}
	return &Filter{patterns: compiled}, nil
}

// Excluded reports whether pluginID matches an exclude pattern.
func (f *Filter) Excluded(pluginID string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.patterns {
		if p.glob.Match(pluginID) {
			return true
		}
	}
	return false
}
