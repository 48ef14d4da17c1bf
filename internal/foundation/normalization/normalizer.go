// Package normalization maps loosely written configuration strings onto typed enums.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer converts user supplied strings into values of an enum type T.
type Normalizer[T comparable] struct {
	values       map[string]T
	defaultValue T
	keys         []string
}

// NewNormalizer builds a normalizer from the accepted spellings. Keys are
// compared case-insensitively after trimming whitespace.
func NewNormalizer[T comparable](values map[string]T, defaultValue T) *Normalizer[T] {
	n := &Normalizer[T]{
		values:       make(map[string]T, len(values)),
		defaultValue: defaultValue,
		keys:         make([]string, 0, len(values)),
	}
	for k, v := range values {
		key := clean(k)
		n.values[key] = v
		n.keys = append(n.keys, key)
	}
	sort.Strings(n.keys)
	return n
}

// Normalize returns the matching value, or the default when raw is unknown.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[clean(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// NormalizeWithError returns the matching value. Empty input yields the default;
// any other unknown input is an error listing the accepted spellings.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	cleaned := clean(raw)
	if cleaned == "" {
		return n.defaultValue, nil
	}
	if v, ok := n.values[cleaned]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %v", raw, n.keys)
}

// ValidKeys returns the accepted spellings in sorted order.
func (n *Normalizer[T]) ValidKeys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
