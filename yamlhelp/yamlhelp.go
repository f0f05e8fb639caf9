// Package yamlhelp has helpers for working with ordered maps in YAML
// documents, so single-key sections keep a stable serialization order.
package yamlhelp

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Single builds an ordered map holding exactly one pair.
func Single[K comparable, V any](key K, value V) *orderedmap.OrderedMap[K, V] {
	m := orderedmap.New[K, V]()
	m.Set(key, value)
	return m
}

// Keys lists the keys in insertion order.
func Keys[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []K {
	if m == nil {
		return nil
	}
	keys := make([]K, 0, m.Len())
	for p := m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// First returns the oldest pair, or ok=false on an empty or nil map.
func First[K comparable, V any](m *orderedmap.OrderedMap[K, V]) (key K, value V, ok bool) {
	if m == nil {
		return key, value, false
	}
	p := m.Oldest()
	if p == nil {
		return key, value, false
	}
	return p.Key, p.Value, true
}

// Get looks a key up, returning ok=false on a nil map as well.
func Get[K comparable, V any](m *orderedmap.OrderedMap[K, V], key K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	return m.Get(key)
}
