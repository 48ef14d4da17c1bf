package transforms

import (
	"fmt"
	"sort"
	"strings"
)

// Options holds step configuration as decoded from YAML.
type Options map[string]any

// String returns the string option key, or def when unset or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns the boolean option key, or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Strings returns a list option. A single string is treated as a one
// element list.
func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// Signature renders the options deterministically for cache keys.
func (o Options) Signature() string {
	if len(o) == 0 {
		return ""
	}
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, o[k])
	}
	return b.String()
}
