// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package apphost_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/simbridge/simbridge/internal/apphost"
)

func TestMerge(t *testing.T) {
	dst := apphost.Tree{
		"navigator": apphost.Tree{
			"userAgent": "sim",
			"camera":    apphost.Tree{"quality": 50},
		},
		"version": "1.0",
		"list":    []any{1, 2, 3},
	}
	src := apphost.Tree{
		"navigator": map[string]any{
			"camera":      map[string]any{"getPicture": "fn"},
			"geolocation": map[string]any{"watch": "fn"},
		},
		"version": map[string]any{"major": 2},
		"list":    []any{9},
		"cleared": nil,
	}

	apphost.Merge(dst, src)

	assert.Equal(t, apphost.Tree{
		"navigator": apphost.Tree{
			"userAgent":   "sim",
			"camera":      apphost.Tree{"quality": 50, "getPicture": "fn"},
			"geolocation": apphost.Tree{"watch": "fn"},
		},
		"version": apphost.Tree{"major": 2},
		"list":    []any{9},
		"cleared": nil,
	}, dst)
}

func TestMerge_DoesNotAliasSource(t *testing.T) {
	src := apphost.Tree{"a": apphost.Tree{"b": 1}}
	dst := apphost.Tree{}

	apphost.Merge(dst, src)
	dst["a"].(apphost.Tree)["c"] = 2

	assert.Equal(t, apphost.Tree{"b": 1}, src["a"])
}
