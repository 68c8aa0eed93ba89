package textutil

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// MapLimits bounds key and value lengths in bytes. Zero disables a bound.
type MapLimits struct {
	MaxKeyLength   int
	MaxValueLength int
	MaxEntries     int
}

// CompactStringMap trims keys and values and drops entries whose key or value ends up empty.
// Over-long strings are cut on a rune boundary. When MaxEntries is exceeded the
// lexically smallest keys are kept so the result is deterministic.
func CompactStringMap(values map[string]string, limits MapLimits) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = truncate(strings.TrimSpace(key), limits.MaxKeyLength)
		value = truncate(strings.TrimSpace(value), limits.MaxValueLength)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	if limits.MaxEntries > 0 && len(result) > limits.MaxEntries {
		keys := make([]string, 0, len(result))
		for key := range result {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys[limits.MaxEntries:] {
			delete(result, key)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	cut := value[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimSpace(cut)
}
