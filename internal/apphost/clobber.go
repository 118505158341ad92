// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package apphost

// Tree is a generic key/value namespace, such as the API surface plugins
// expose to the application.
type Tree map[string]any

// Merge writes src into dst. A Tree value in src merges into the Tree at the
// same key in dst, replacing whatever non-Tree value was there; every other
// value, including slices and nil, overwrites.
func Merge(dst, src Tree) {
	for key, value := range src {
		sub, ok := asTree(value)
		if !ok {
			dst[key] = value
			continue
		}
		target, ok := asTree(dst[key])
		if !ok {
			target = Tree{}
			dst[key] = target
		}
		Merge(target, sub)
	}
}

func asTree(v any) (Tree, bool) {
	switch t := v.(type) {
	case Tree:
		return t, t != nil
	case map[string]any:
		return Tree(t), t != nil
	default:
		return nil, false
	}
}
