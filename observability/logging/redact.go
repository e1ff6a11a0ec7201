package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credentials in log output.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"bearer":        {},
	"secret":        {},
	"jwt_secret":    {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue keeps a short prefix of a credential so operators can correlate
// tokens without the log carrying a usable secret. Empty values are returned
// unchanged.
func MaskValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	value = strings.TrimPrefix(value, "Bearer ")
	if len(value) <= 8 {
		return RedactedValue
	}
	return value[:4] + "…" + RedactedValue
}

// MaskField returns key=value, masking the value when key is sensitive.
func MaskField(key, value string) slog.Attr {
	if IsSensitive(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}
