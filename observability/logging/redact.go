package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets such as bearer tokens and signatures.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"bearer":        {},
	"signature":     {},
	"passphrase":    {},
	"privatekey":    {},
	"jwtsecret":     {},
	"beaconseed":    {},
}

// IsSensitive reports whether values logged under key must be masked. Keys
// are matched case-insensitively with '_' and '-' ignored.
func IsSensitive(key string) bool {
	normalized := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(key)))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// redact masks sensitive string attributes. Empty values pass through so
// absent fields do not show a placeholder.
func redact(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
