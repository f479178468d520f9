package receipt

import (
	"slices"
	"unicode/utf16"

	"github.com/commandlayer/runtime-core/pkg/canonicalize"
	"github.com/commandlayer/runtime-core/pkg/coreerr"
	"github.com/commandlayer/runtime-core/pkg/crypto"
)

// SignOptions configures Generation-1 signing.
type SignOptions struct {
	// PrivateKey is anything crypto.ParsePrivateKey accepts. It is ignored
	// when Signer is set.
	PrivateKey any
	Signer     crypto.Signer
	SignerID   string
	// Kid defaults to the Signer's key id.
	Kid string
	// Canonical must be empty or DefaultCanonical.
	Canonical string
}

// VerifyOptions configures Generation-1 verification.
type VerifyOptions struct {
	// PublicKey is anything crypto.ParsePublicKey accepts.
	PublicKey any
	// AllowedCanonicals defaults to [DefaultCanonical].
	AllowedCanonicals []string
	RequireKid        string
	RequireSignerID   string
}

// UnsignedView is the value Generation-1 hashes: the receipt without
// metadata.receipt_id and without the proof's hash_sha256, signature_b64 and
// signature members.
func UnsignedView(r *Receipt) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	return r.view(viewDigest)
}

// ComputeCanonicalAndHash canonicalizes the unsigned view with the ordinal
// comparator and returns it with its lowercase hex SHA-256.
func ComputeCanonicalAndHash(r *Receipt) (canonical, hash string) {
	canonical = canonicalize.SortedKeysV1(UnsignedView(r))
	return canonical, canonicalize.SHA256Hex(canonical)
}

// SignDigest returns a copy of r carrying a Generation-1 proof and a
// receipt_id equal to the proof hash.
//
// The proof header (alg, canonical, signer_id, kid) is part of the unsigned
// view, so it is placed on the receipt before hashing; the verifier
// recomputes the hash over the same members.
func SignDigest(r *Receipt, opts SignOptions) (*Receipt, error) {
	canonicalID := opts.Canonical
	if canonicalID == "" {
		canonicalID = DefaultCanonical
	}
	if canonicalID != DefaultCanonical {
		return nil, coreerr.Errorf(coreerr.ErrUnsupportedCanonical,
			"unsupported canonical %q, expected %q", canonicalID, DefaultCanonical)
	}
	if err := checkMetadata(r); err != nil {
		return nil, err
	}
	signer, err := signerFor(opts.Signer, opts.PrivateKey, opts.Kid)
	if err != nil {
		return nil, err
	}

	next := AttachProof(r, &Proof{
		Alg:       AlgEd25519SHA256,
		Canonical: canonicalID,
		SignerID:  opts.SignerID,
		Kid:       signer.KeyID(),
	})
	next.Metadata.ReceiptID = ""
	delete(next.Metadata.Extensions, "receipt_id")

	_, hash := ComputeCanonicalAndHash(next)
	sig, err := signer.Sign([]byte(hash))
	if err != nil {
		return nil, err
	}
	next.Metadata.Proof.HashSHA256 = hash
	next.Metadata.Proof.SignatureB64 = sig
	next.Metadata.ReceiptID = hash
	return next, nil
}

// VerifyDigest checks a Generation-1 receipt. Checks run in a fixed order
// and the first failure is reported.
func VerifyDigest(r *Receipt, opts VerifyOptions) VerifyResult {
	p := r.Proof()
	if p == nil {
		return fail(ReasonMissingProof)
	}
	if opts.RequireSignerID != "" && p.SignerID != opts.RequireSignerID {
		return fail(ReasonSignerIDMismatch)
	}
	if opts.RequireKid != "" && p.Kid != opts.RequireKid {
		return fail(ReasonKidMismatch)
	}
	allowed := opts.AllowedCanonicals
	if allowed == nil {
		allowed = []string{DefaultCanonical}
	}
	if p.Canonical == "" || !slices.Contains(allowed, p.Canonical) {
		return fail(ReasonCanonicalNotAllowed)
	}
	if p.Alg != AlgEd25519SHA256 {
		return fail(ReasonUnsupportedAlg)
	}

	_, hash := ComputeCanonicalAndHash(r)
	if len(utf16.Encode([]rune(p.HashSHA256))) != 64 {
		return fail(ReasonMissingOrInvalidHash)
	}
	if hash != p.HashSHA256 {
		return fail(ReasonHashMismatch)
	}

	var sigB64 string
	switch {
	case p.SignatureB64 != "":
		sigB64 = p.SignatureB64
	case p.Signature != "":
		sigB64 = crypto.Base64URLToBase64(p.Signature)
	default:
		return fail(ReasonMissingSignature)
	}

	v, err := crypto.NewEd25519Verifier(opts.PublicKey)
	if err != nil {
		return fail(ReasonBadSignature)
	}
	if !v.VerifyBase64([]byte(hash), sigB64) {
		return fail(ReasonBadSignature)
	}
	return pass()
}

// EnforceCanonicalFromENS compares the proof's canonical identifier with the
// policy a signer declares in its cl.sig.canonical record. It says nothing
// about signature validity.
func EnforceCanonicalFromENS(r *Receipt, ensCanonical string) VerifyResult {
	p := r.Proof()
	if p == nil {
		return fail(ReasonMissingProof)
	}
	if ensCanonical == "" {
		return fail(ReasonMissingENSCanonical)
	}
	if p.Canonical != ensCanonical {
		return fail(ReasonCanonicalMismatchENS)
	}
	return pass()
}
