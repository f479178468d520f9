package receipt

// Reason is a Generation-1 verification failure token.
type Reason string

const (
	ReasonMissingProof         Reason = "missing_proof"
	ReasonSignerIDMismatch     Reason = "signer_id_mismatch"
	ReasonKidMismatch          Reason = "kid_mismatch"
	ReasonCanonicalNotAllowed  Reason = "canonical_not_allowed"
	ReasonUnsupportedAlg       Reason = "unsupported_alg"
	ReasonMissingOrInvalidHash Reason = "missing_or_invalid_hash"
	ReasonHashMismatch         Reason = "hash_mismatch"
	ReasonMissingSignature     Reason = "missing_signature"
	ReasonBadSignature         Reason = "bad_signature"
	ReasonMissingENSCanonical  Reason = "missing_ens_canonical"
	ReasonCanonicalMismatchENS Reason = "canonical_mismatch_ens"
)

// VerifyResult is the outcome of a Generation-1 check. Reason is empty when
// OK is true.
type VerifyResult struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason,omitempty"`
}

func pass() VerifyResult {
	return VerifyResult{OK: true}
}

func fail(r Reason) VerifyResult {
	return VerifyResult{Reason: r}
}
