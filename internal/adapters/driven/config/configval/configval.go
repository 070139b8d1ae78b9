// Package configval converts loosely typed configuration values, as produced
// by TOML and JSON decoders, into Go types.
package configval

import "strconv"

// String returns v if it is a string, else "".
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Int converts integer and float values. TOML integers decode as int64.
func Int(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Float converts float and integer values.
func Float(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Bool returns v if it is a bool, else false.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}

// StringSlice converts []string and []any values. TOML arrays decode as []any.
func StringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		result := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}
