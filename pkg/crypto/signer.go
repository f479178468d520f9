package crypto

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// Signer produces detached Ed25519 signatures for receipt proofs. Sign
// returns standard base64.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() ed25519.PublicKey
	KeyID() string
}

// Ed25519Signer signs with a caller-supplied private key. Key generation and
// storage are the caller's concern.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

// NewEd25519SignerFromKey accepts anything ParsePrivateKey does.
func NewEd25519SignerFromKey(key any, keyID string) (*Ed25519Signer, error) {
	priv, err := ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}, nil
}

// Sign returns the standard base64 signature over data.
func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	if len(s.privKey) != ed25519.PrivateKeySize {
		return "", coreerr.New(coreerr.ErrInvalidKey, "signer has no usable private key")
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.privKey, data)), nil
}

func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.pubKey
}

func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}
