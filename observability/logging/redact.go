package logging

import (
	"log/slog"
	"strings"
	"unicode"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// Credentials the vault daemon handles: RPC bearer tokens and their HS256
// signing key, the owner keystore passphrase and the webhook HMAC key.
var secretKeys = map[string]struct{}{
	"authorization":  {},
	"jwt":            {},
	"jwt_secret":     {},
	"bearer":         {},
	"passphrase":     {},
	"keystore_pass":  {},
	"webhook_secret": {},
	"signature":      {},
	"private_key":    {},
}

// Derived names such as "owner_passphrase" or "hmacSecret". Contract
// addresses like "stableToken" are deliberately not covered.
var secretSuffixes = []string{"secret", "passphrase", "password"}

// IsSecret reports whether values logged under key are credentials. Keys are
// compared case-insensitively with camelCase, dots and dashes folded to
// snake_case, so "webhookSecret" and "webhook-secret" both match.
func IsSecret(key string) bool {
	k := snakeKey(key)
	if _, ok := secretKeys[k]; ok {
		return true
	}
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

func snakeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	var prev rune
	for _, r := range key {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// MaskBearer renders an Authorization header without its credential. The
// scheme and the last four characters survive so operators can tell two
// rejected tokens apart; short tokens are masked entirely.
func MaskBearer(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		scheme, token = "", header
	}
	token = strings.TrimSpace(token)
	masked := RedactedValue
	if len(token) >= 16 {
		masked += "…" + token[len(token)-4:]
	}
	if scheme == "" {
		return masked
	}
	return scheme + " " + masked
}

// MaskField builds an attribute for key, masking the value when the key names
// a credential. Empty values are kept so a missing header stays visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSecret(key) {
		return slog.String(key, value)
	}
	if snakeKey(key) == "authorization" {
		return slog.String(key, MaskBearer(value))
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is installed as part of the handler's ReplaceAttr chain so a
// secret logged by mistake never reaches stdout or the rotated file.
func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if !IsSecret(attr.Key) {
		return attr
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		return MaskField(attr.Key, attr.Value.String())
	case slog.KindGroup:
		return attr
	default:
		return slog.String(attr.Key, RedactedValue)
	}
}
