package crypto

import (
	"encoding/base64"
	"strings"
)

// ToBase64URL encodes b with the URL-safe alphabet and no padding.
func ToBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// FromBase64URL decodes URL-safe base64, with or without padding.
func FromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Base64URLToBase64 rewrites the alphabet and restores padding. It performs no
// validation beyond that.
func Base64URLToBase64(s string) string {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}

// Base64ToBase64URL rewrites the alphabet and strips trailing padding.
func Base64ToBase64URL(s string) string {
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return strings.TrimRight(s, "=")
}

// decodeStdBase64 accepts standard base64 with or without padding.
func decodeStdBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
