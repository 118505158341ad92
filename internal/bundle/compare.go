// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

// Equal compares two JSON-shaped trees for cache staleness.
//
// Mappings are equal when they hold the same keys with Equal values, in any
// key order. Sequences are equal only element by element in the same order.
// A nil on either side is never equal to anything, including another nil, so
// a missing cache entry always reads as stale.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}

	an, aok := number(a)
	bn, bok := number(b)
	return aok && bok && an == bn
}

// number widens the numeric types a decoded or hand-built tree may hold.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
