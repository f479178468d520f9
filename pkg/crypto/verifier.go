package crypto

import "crypto/ed25519"

// Ed25519Verifier checks detached Ed25519 signatures.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier accepts anything ParsePublicKey does.
func NewEd25519Verifier(key any) (*Ed25519Verifier, error) {
	pub, err := ParsePublicKey(key)
	if err != nil {
		return nil, err
	}
	return &Ed25519Verifier{PublicKey: pub}, nil
}

// Verify never panics: a malformed key or signature is simply invalid.
func (v *Ed25519Verifier) Verify(message []byte, signature []byte) bool {
	if len(v.PublicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.PublicKey, message, signature)
}

// VerifyBase64 decodes a standard base64 signature and verifies it.
func (v *Ed25519Verifier) VerifyBase64(message []byte, sigB64 string) bool {
	sig, err := decodeStdBase64(sigB64)
	if err != nil {
		return false
	}
	return v.Verify(message, sig)
}
