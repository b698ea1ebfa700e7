package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces values that must not reach the logs.
const RedactedValue = "[REDACTED]"

// Keys whose values are operational and safe to log verbatim.
var plainKeys = map[string]struct{}{
	"service":     {},
	"env":         {},
	"environment": {},
	"error":       {},
	"reason":      {},
	"module":      {},
	"operation":   {},
	"ledger":      {},
	"asset":       {},
	"sequence":    {},
	"status":      {},
	"path":        {},
	"method":      {},
}

// IsPlain reports whether values logged under key are emitted unmasked.
func IsPlain(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField redacts value unless key is a plain operational key. Empty values
// pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAccount logs a settlement account as its leading and trailing hex
// digits, enough to correlate log lines without exposing the full identity.
// Values that are not 0x-prefixed 20-byte hex strings are redacted.
func MaskAccount(key, account string) slog.Attr {
	account = strings.TrimSpace(account)
	if IsPlain(key) {
		return slog.String(key, account)
	}
	if len(account) != 42 || !strings.HasPrefix(strings.ToLower(account), "0x") || !isHex(account[2:]) {
		return MaskField(key, account)
	}
	return slog.String(key, account[:6]+".."+account[len(account)-4:])
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
