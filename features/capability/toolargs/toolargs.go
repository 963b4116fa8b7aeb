// Package toolargs provides typed accessors for validated tool argument maps.
// Registry validation guarantees types, so lookups only need to handle absent
// optional arguments.
package toolargs

// String returns the string argument or fallback when absent.
func String(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

// Float returns the numeric argument or fallback when absent. Validated
// numbers arrive as float64 after JSON normalization.
func Float(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// Int returns the integer argument or fallback when absent.
func Int(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

// Bool returns the boolean argument or fallback when absent.
func Bool(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
