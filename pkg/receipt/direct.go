package receipt

import (
	"github.com/commandlayer/runtime-core/pkg/canonicalize"
	"github.com/commandlayer/runtime-core/pkg/coreerr"
	"github.com/commandlayer/runtime-core/pkg/crypto"
)

// DirectSignOptions configures Generation-0 signing.
type DirectSignOptions struct {
	// PrivateKey is anything crypto.ParsePrivateKey accepts. It is ignored
	// when Signer is set.
	PrivateKey any
	Signer     crypto.Signer
	SignerID   string
	// Kid defaults to the Signer's key id.
	Kid string
	// Canonical is recorded in the proof as given. Defaults to
	// DefaultCanonical.
	Canonical string
}

// DirectVerifyOptions configures Generation-0 verification.
type DirectVerifyOptions struct {
	// PublicKey is anything crypto.ParsePublicKey accepts.
	PublicKey any
	// Canonical is the identifier the proof must carry. Defaults to
	// DefaultCanonical.
	Canonical string
}

// DirectCanonical is the Generation-0 canonical form of r: the locale-ordered
// canonicalization of the receipt without metadata.proof, with metadata
// omitted once nothing else is left in it.
func DirectCanonical(r *Receipt) string {
	if r == nil {
		return canonicalize.LocaleSortedKeys(map[string]any{})
	}
	return canonicalize.LocaleSortedKeys(r.view(viewDirect))
}

// SignDirect signs the canonical bytes of the whole receipt and returns a
// copy carrying a Generation-0 proof. Any proof already present is replaced
// and does not take part in the signature.
func SignDirect(r *Receipt, opts DirectSignOptions) (*Receipt, error) {
	canonicalID := opts.Canonical
	if canonicalID == "" {
		canonicalID = DefaultCanonical
	}
	if err := checkMetadata(r); err != nil {
		return nil, err
	}
	signer, err := signerFor(opts.Signer, opts.PrivateKey, opts.Kid)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign([]byte(DirectCanonical(r)))
	if err != nil {
		return nil, err
	}
	return AttachProof(r, &Proof{
		Alg:       AlgEd25519,
		SignerID:  opts.SignerID,
		Canonical: canonicalID,
		Kid:       signer.KeyID(),
		Signature: crypto.Base64ToBase64URL(sig),
	}), nil
}

// VerifyDirect reports whether r carries a valid Generation-0 proof. Every
// failure, structural or cryptographic, is false.
func VerifyDirect(r *Receipt, opts DirectVerifyOptions) bool {
	canonicalID := opts.Canonical
	if canonicalID == "" {
		canonicalID = DefaultCanonical
	}
	p := r.Proof()
	if p == nil || p.Alg != AlgEd25519 || p.Canonical != canonicalID {
		return false
	}
	sig, err := crypto.FromBase64URL(p.Signature)
	if err != nil {
		return false
	}
	v, err := crypto.NewEd25519Verifier(opts.PublicKey)
	if err != nil {
		return false
	}
	return v.Verify([]byte(DirectCanonical(r)), sig)
}

// signerFor returns s, or an Ed25519 signer for key when s is nil. An
// explicit kid overrides the one s carries.
func signerFor(s crypto.Signer, key any, kid string) (crypto.Signer, error) {
	if s == nil {
		signer, err := crypto.NewEd25519SignerFromKey(key, kid)
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	if kid != "" && kid != s.KeyID() {
		return keyedSigner{Signer: s, kid: kid}, nil
	}
	return s, nil
}

type keyedSigner struct {
	crypto.Signer
	kid string
}

func (k keyedSigner) KeyID() string {
	return k.kid
}

// checkMetadata rejects a receipt whose metadata member is present but not
// an object. No proof can be attached to it.
func checkMetadata(r *Receipt) error {
	if r == nil || r.Metadata != nil {
		return nil
	}
	if _, ok := r.Extensions["metadata"]; ok {
		return coreerr.New(coreerr.ErrInvalidReceipt, "receipt metadata must be an object")
	}
	return nil
}
