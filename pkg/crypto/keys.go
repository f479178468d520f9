package crypto

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"strings"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// Encoding names the wire form a public key arrived in.
type Encoding string

const (
	EncodingRaw32     Encoding = "raw32"
	EncodingBase64URL Encoding = "base64url"
	EncodingSPKI      Encoding = "spki"
	EncodingPEM       Encoding = "pem"
)

// ParsePublicKey accepts a PEM SPKI string, a base64url raw key string, a raw
// 32-byte slice, SPKI DER bytes or an ed25519.PublicKey.
func ParsePublicKey(key any) (ed25519.PublicKey, error) {
	switch k := key.(type) {
	case ed25519.PublicKey:
		return copyPublic(k)
	case string:
		if strings.Contains(k, "-----BEGIN") {
			der, err := ParsePEMToDER(k)
			if err != nil {
				return nil, err
			}
			return parseSPKI(der)
		}
		raw, err := FromBase64URL(strings.TrimSpace(k))
		if err != nil {
			return nil, coreerr.Wrap(coreerr.ErrInvalidKey, err, "public key is neither PEM nor base64url")
		}
		return copyPublic(raw)
	case []byte:
		if len(k) == ed25519.PublicKeySize {
			return copyPublic(k)
		}
		return parseSPKI(k)
	default:
		return nil, coreerr.Errorf(coreerr.ErrInvalidKey, "unsupported public key type %T", key)
	}
}

// ParsePrivateKey accepts a PKCS#8 PEM string, PKCS#8 DER bytes or an
// ed25519.PrivateKey.
func ParsePrivateKey(key any) (ed25519.PrivateKey, error) {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		if len(k) != ed25519.PrivateKeySize {
			return nil, coreerr.Errorf(coreerr.ErrInvalidKey, "invalid private key size: %d", len(k))
		}
		return k, nil
	case string:
		block, _ := pem.Decode([]byte(k))
		if block == nil {
			return nil, coreerr.New(coreerr.ErrInvalidPEM, "no PEM block found in private key")
		}
		return parsePKCS8(block.Bytes)
	case []byte:
		return parsePKCS8(k)
	default:
		return nil, coreerr.Errorf(coreerr.ErrInvalidKey, "unsupported private key type %T", key)
	}
}

// EncodePrivateKeyPEM marshals an Ed25519 private key as PKCS#8 PEM.
func EncodePrivateKeyPEM(priv ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", coreerr.Wrap(coreerr.ErrInvalidKey, err, "marshal private key")
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// EncodePublicKey renders a public key in the requested encoding.
func EncodePublicKey(pub ed25519.PublicKey, enc Encoding) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", coreerr.Errorf(coreerr.ErrInvalidKey, "invalid public key size: %d", len(pub))
	}
	switch enc {
	case EncodingBase64URL, EncodingRaw32:
		return ToBase64URL(pub), nil
	case EncodingSPKI:
		der, err := Raw32ToSPKI(pub)
		if err != nil {
			return "", err
		}
		return ToBase64URL(der), nil
	case EncodingPEM:
		return Raw32ToPEM(pub)
	default:
		return "", coreerr.Errorf(coreerr.ErrInvalidKey, "unknown key encoding %q", enc)
	}
}

func parseSPKI(der []byte) (ed25519.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		// Fall back to the positional extraction for SPKI blobs the x509
		// parser rejects but whose key tail is intact.
		raw, rerr := ExtractEd25519Raw32(der)
		if rerr != nil {
			return nil, coreerr.Wrap(coreerr.ErrInvalidSPKI, err, "parse SPKI")
		}
		return raw, nil
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, coreerr.Errorf(coreerr.ErrInvalidKey, "SPKI holds %T, not an Ed25519 key", parsed)
	}
	return copyPublic(pub)
}

func parsePKCS8(der []byte) (ed25519.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidKey, err, "parse PKCS#8 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, coreerr.Errorf(coreerr.ErrInvalidKey, "PKCS#8 holds %T, not an Ed25519 key", parsed)
	}
	return priv, nil
}

func copyPublic(b []byte) (ed25519.PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, coreerr.Errorf(coreerr.ErrInvalidKey, "invalid public key size: %d", len(b))
	}
	out := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(out, b)
	return out, nil
}
