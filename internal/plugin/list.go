// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package plugin

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"
)

// Record pairs a plugin identifier with the directory holding its simulation
// sources.
type Record struct {
	ID  string
	Dir string
}

// List maps plugin identifiers to source directories and remembers insertion
// order so bundles concatenate plugin scripts deterministically.
//
// The zero value is an empty list ready to use.
type List struct {
	ids  []string
	dirs map[string]string
}

// NewList builds a list from records. Later duplicates replace the directory
// of an earlier record without changing its position.
func NewList(records ...Record) List {
	var l List
	for _, r := range records {
		l.Set(r.ID, r.Dir)
	}
	return l
}

// Set adds or replaces a plugin. A new identifier is appended at the end.
func (l *List) Set(id, dir string) {
	if l.dirs == nil {
		l.dirs = make(map[string]string)
	}
	if _, exists := l.dirs[id]; !exists {
		l.ids = append(l.ids, id)
	}
	l.dirs[id] = dir
}

// Dir returns the source directory for id.
func (l List) Dir(id string) (string, bool) {
	dir, ok := l.dirs[id]
	return dir, ok
}

// Len returns the number of plugins.
func (l List) Len() int {
	return len(l.ids)
}

// IDs returns plugin identifiers in insertion order.
func (l List) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Records returns the plugins in insertion order.
func (l List) Records() []Record {
	out := make([]Record, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, Record{ID: id, Dir: l.dirs[id]})
	}
	return out
}

// Clone returns an independent copy.
func (l List) Clone() List {
	return NewList(l.Records()...)
}

// Tree returns the list as a generic mapping, the shape stored in a cache
// descriptor and compared for staleness.
func (l List) Tree() map[string]any {
	out := make(map[string]any, len(l.ids))
	for _, id := range l.ids {
		out[id] = l.dirs[id]
	}
	return out
}

// MarshalJSON encodes the list as a JSON object in insertion order.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range l.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, oops.With("plugin", id).Wrap(err)
		}
		val, err := json.Marshal(l.dirs[id])
		if err != nil {
			return nil, oops.With("plugin", id).Wrap(err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the document.
func (l *List) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return oops.Wrap(err)
	}
	if tok == nil {
		*l = List{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return oops.Errorf("plugin list must be a JSON object")
	}

	var out List
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return oops.Wrap(err)
		}
		id, ok := keyTok.(string)
		if !ok {
			return oops.Errorf("plugin list key must be a string")
		}
		var dir string
		if err := dec.Decode(&dir); err != nil {
			return oops.With("plugin", id).Wrap(err)
		}
		out.Set(id, dir)
	}
	if _, err := dec.Token(); err != nil {
		return oops.Wrap(err)
	}
	*l = out
	return nil
}
