// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize returns a normalized copy of a metadata value: maps become
// map[string]any with nil entries dropped, slices become []any, and all
// numbers widen to float64. Canonicalizing twice yields the same value, which
// makes trace output stable across adapters that build metadata differently.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if e == nil {
				continue
			}
			out[k] = Canonicalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Canonicalize(e)
		}
		return out
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	default:
		return v
	}
}

// CanonicalMetadata returns the canonicalized metadata map of m.
func (m Unified) CanonicalMetadata() map[string]any {
	c, _ := Canonicalize(m.Metadata).(map[string]any)
	return c
}

// CanonicalJSON renders v as deterministic JSON: object keys appear in sorted
// order at every depth. encoding/json already sorts map keys, so this reduces
// to canonicalizing the value first and marshaling the result.
func CanonicalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(Canonicalize(v))
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return b, nil
}

// SortedKeys returns the metadata keys of m in sorted order. Trace output
// iterates these so repeated traces of the same message line up.
func (m Unified) SortedKeys() []string {
	keys := make([]string, 0, len(m.Metadata))
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
