// Package attrs inspects slog-style key-value attribute lists.
//
// Services emit audit log lines as variadic [key1, value1, key2, value2, ...]
// pairs; the audit publisher needs selected values back out of that list
// without forcing every call site to build a struct.
package attrs

// ExtractString returns the string value for key in a key-value attribute
// slice. Returns empty string if the key is absent or its value is not a
// string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if k == key {
			if v, ok := attrs[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}
