package audit

import "strings"

// RedactionMarker replaces non-string values whose field name matches a
// sensitive pattern. Strings are masked instead so operators can still
// recognize which record was touched.
const RedactionMarker = "[REDACTED]"

const maskRun = "*****"

// Sanitizer masks or redacts values whose field names match any of the
// configured patterns. Matching is case-insensitive substring matching, and
// the patterns are data, not code, so locale-specific field names live in
// configuration.
type Sanitizer struct {
	patterns []string
}

func NewSanitizer(patterns []string) *Sanitizer {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &Sanitizer{patterns: lowered}
}

func (s *Sanitizer) isSensitive(field string) bool {
	f := strings.ToLower(field)
	for _, p := range s.patterns {
		if strings.Contains(f, p) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of data with sensitive values masked. The
// input is never modified; audit callers often hold the same map they are
// about to persist as the entity itself.
func (s *Sanitizer) Sanitize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s.isSensitive(k) {
			out[k] = maskValue(v)
			continue
		}
		out[k] = s.sanitizeValue(v)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return s.Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

// maskValue masks a string preserving at most its first and last characters;
// everything else becomes a fixed-length run so the original length does not
// leak. Non-string values (numbers, maps, whole arrays) are replaced outright.
func maskValue(v any) any {
	str, ok := v.(string)
	if !ok {
		return RedactionMarker
	}
	// Boundary characters are runes, not bytes; accented names must stay
	// valid UTF-8 after masking.
	r := []rune(str)
	switch {
	case len(r) <= 4:
		return maskRun
	case len(r) <= 8:
		return string(r[:1]) + maskRun + string(r[len(r)-1:])
	default:
		return string(r[:2]) + maskRun + string(r[len(r)-2:])
	}
}
