package audit

import (
	"regexp"
	"unicode/utf8"
)

const (
	// Redacted replaces the value of every sensitive key.
	Redacted = "[REDACTED]"

	// MaxStringLength bounds string values in meta, in characters.
	MaxStringLength = 2048

	truncatedSuffix = "…[truncated]"
)

var sensitiveKey = regexp.MustCompile(`(?i)password|passphrase|token|secret|authorization`)

// Redact returns a copy of meta with sensitive keys masked and long strings
// truncated, at any depth. The input is not modified.
func Redact(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if sensitiveKey.MatchString(k) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Redact(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return Redact(m)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Truncate(item)
		}
		return out
	case string:
		return Truncate(val)
	case error:
		return Truncate(val.Error())
	default:
		return v
	}
}

// Truncate cuts s to MaxStringLength characters and marks the cut.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxStringLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxStringLength]) + truncatedSuffix
}
