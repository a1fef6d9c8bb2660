package logutil

import (
	"net/url"
	"strings"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	case strings.Contains(normalized, "auth"):
		return true
	case strings.Contains(normalized, "session"):
		return true
	case normalized == "email" || normalized == "mail":
		return true
	default:
		return false
	}
}

// RedactURLForLog redacts query parameters and userinfo that look sensitive.
// Landing pages regularly carry tracking or session identifiers in the query;
// non-sensitive parameters are kept so failures stay diagnosable.
// Unparseable input is truncated rather than dropped.
func RedactURLForLog(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return TruncateForLog(raw, 256)
	}
	if u.User != nil {
		u.User = url.User("[REDACTED]")
	}
	if u.RawQuery == "" {
		return u.String()
	}

	pairs := strings.Split(u.RawQuery, "&")
	changed := false
	for i, pair := range pairs {
		name, _, hasValue := strings.Cut(pair, "=")
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if hasValue && IsSensitiveLogField(decoded) {
			pairs[i] = name + "=REDACTED"
			changed = true
		}
	}
	if changed {
		u.RawQuery = strings.Join(pairs, "&")
	}
	return u.String()
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	cut := maxChars
	for cut > 0 && !isRuneStart(normalized[cut]) {
		cut--
	}
	return normalized[:cut] + "... [truncated]"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
