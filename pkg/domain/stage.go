package domain

import (
	"fmt"
	"sort"
)

// Inputs maps a stage's named parameters to resolved values.
// Values are file or directory paths (string), path lists ([]string) or scalars.
type Inputs map[string]any

// Outputs maps a stage's declared output names to produced paths.
type Outputs map[string]any

// String returns the string value of key, or "" when absent.
func (in Inputs) String(key string) string {
	s, _ := in[key].(string)
	return s
}

// Paths returns key as a list of paths. A single path is promoted to a one-element list.
func (in Inputs) Paths(key string) []string {
	switch v := in[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}

// Float returns key as a float64. Integers are converted.
func (in Inputs) Float(key string) (float64, bool) {
	switch v := in[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns key as an int, or def when absent or not numeric.
func (in Inputs) Int(key string, def int) int {
	switch v := in[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Keys returns the sorted output names.
func (out Outputs) Keys() []string {
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
