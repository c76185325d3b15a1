package payment

import (
	"maps"
	"slices"
	"strings"
)

// Payload is a provider callback body flattened to string keys and values.
type Payload map[string]string

// First returns the first non-empty value among keys.
func (p Payload) First(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p[k]); v != "" {
			return v
		}
	}
	return ""
}

// without returns a copy of p with the given keys removed, ignoring case.
func (p Payload) without(keys []string) map[string]string {
	out := maps.Clone(map[string]string(p))
	maps.DeleteFunc(out, func(k, _ string) bool {
		return slices.ContainsFunc(keys, func(r string) bool { return strings.EqualFold(k, r) })
	})
	return out
}
