package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// ed25519SPKIPrefix is the DER header of an Ed25519 SubjectPublicKeyInfo:
// SEQUENCE { SEQUENCE { OID 1.3.101.112 } BIT STRING (0 unused bits) }.
var ed25519SPKIPrefix = []byte{0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70, 0x03, 0x21, 0x00}

const (
	pemPublicHeader = "-----BEGIN PUBLIC KEY-----"
	pemPublicFooter = "-----END PUBLIC KEY-----"
	pemLineWidth    = 64
)

var whitespace = regexp.MustCompile(`\s+`)

// Raw32ToSPKI wraps a raw Ed25519 public key in SPKI/DER.
func Raw32ToSPKI(raw []byte) ([]byte, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, coreerr.New(coreerr.ErrInvalidKey, "Ed25519 public key must be 32 bytes")
	}
	der := make([]byte, 0, len(ed25519SPKIPrefix)+len(raw))
	der = append(der, ed25519SPKIPrefix...)
	return append(der, raw...), nil
}

// ExtractEd25519Raw32 returns the 32 key bytes at the end of an Ed25519 SPKI.
// The BIT STRING carries a zero unused-bits octet followed by the key, so the
// last 33 bytes must be 0x00 plus exactly 32 bytes.
func ExtractEd25519Raw32(der []byte) ([]byte, error) {
	if len(der) < ed25519.PublicKeySize {
		return nil, coreerr.New(coreerr.ErrInvalidSPKI, "invalid SPKI DER length")
	}
	tail := der
	if len(der) > ed25519.PublicKeySize+1 {
		tail = der[len(der)-(ed25519.PublicKeySize+1):]
	}
	if tail[0] != 0x00 {
		return nil, coreerr.New(coreerr.ErrInvalidSPKI, "invalid Ed25519 SPKI: missing zero bit padding octet")
	}
	key := tail[1:]
	if len(key) != ed25519.PublicKeySize {
		return nil, coreerr.New(coreerr.ErrInvalidSPKI, "invalid Ed25519 key length in SPKI")
	}
	out := make([]byte, ed25519.PublicKeySize)
	copy(out, key)
	return out, nil
}

// ParsePEMToDER strips the PUBLIC KEY armor and all whitespace and decodes
// the remaining base64 body.
func ParsePEMToDER(pemText string) ([]byte, error) {
	body := strings.ReplaceAll(pemText, pemPublicHeader, "")
	body = strings.ReplaceAll(body, pemPublicFooter, "")
	body = whitespace.ReplaceAllString(body, "")
	der, err := decodeStdBase64(body)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidPEM, err, "invalid PEM body")
	}
	return der, nil
}

// EncodePublicKeyPEM armors DER bytes as a PUBLIC KEY block.
func EncodePublicKeyPEM(der []byte) string {
	body := base64.StdEncoding.EncodeToString(der)
	var b strings.Builder
	b.WriteString(pemPublicHeader)
	b.WriteByte('\n')
	for len(body) > pemLineWidth {
		b.WriteString(body[:pemLineWidth])
		b.WriteByte('\n')
		body = body[pemLineWidth:]
	}
	b.WriteString(body)
	b.WriteByte('\n')
	b.WriteString(pemPublicFooter)
	b.WriteByte('\n')
	return b.String()
}

// Raw32ToPEM is Raw32ToSPKI followed by EncodePublicKeyPEM.
func Raw32ToPEM(raw []byte) (string, error) {
	der, err := Raw32ToSPKI(raw)
	if err != nil {
		return "", err
	}
	return EncodePublicKeyPEM(der), nil
}

// PEMToRaw32 is ParsePEMToDER followed by ExtractEd25519Raw32.
func PEMToRaw32(pemText string) ([]byte, error) {
	der, err := ParsePEMToDER(pemText)
	if err != nil {
		return nil, err
	}
	return ExtractEd25519Raw32(der)
}
