// Package receipt models signed operation receipts and implements both
// signing generations: the direct scheme (Generation-0), which signs the
// canonical bytes of the whole receipt, and the digest scheme
// (Generation-1), which signs the hex SHA-256 of a reduced canonical view.
//
// The two generations never cross-verify. Each verifier checks the proof's
// algorithm and canonical identifier before touching any key material.
package receipt

import (
	"bytes"
	"encoding/json"
	"maps"

	"github.com/commandlayer/runtime-core/pkg/canonicalize"
	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// DefaultCanonical is the only canonical identifier Generation-1 signs with.
const DefaultCanonical = canonicalize.SortedKeysV1ID

// Proof algorithm tags.
const (
	AlgEd25519       = "ed25519"
	AlgEd25519SHA256 = "ed25519-sha256"
)

// Status of the operation a receipt describes. Values outside the known set
// are carried verbatim.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusDelegated Status = "delegated"
)

// Generation identifies a signing protocol variant.
type Generation int

const (
	GenerationV0 Generation = iota
	GenerationV1
)

func (g Generation) String() string {
	switch g {
	case GenerationV0:
		return "v0"
	case GenerationV1:
		return "v1"
	default:
		return "unknown"
	}
}

// GenerationOf derives the generation from a proof's algorithm tag.
func GenerationOf(p *Proof) (Generation, bool) {
	if p == nil {
		return 0, false
	}
	switch p.Alg {
	case AlgEd25519:
		return GenerationV0, true
	case AlgEd25519SHA256:
		return GenerationV1, true
	default:
		return 0, false
	}
}

// Receipt is an operation outcome record. Members without a dedicated field,
// and members whose JSON value does not fit their field (nulls, wrong types,
// empty strings), live in Extensions so that a decoded receipt canonicalizes
// exactly like the document it came from.
//
// Engines treat receipts as values: they return new receipts and never
// mutate their input. Nested payload values are shared, not copied.
type Receipt struct {
	Verb       string
	Version    string
	X402       any
	Trace      any
	Payload    any
	Status     Status
	Result     any
	Error      any
	Metadata   *Metadata
	Extensions map[string]any
}

// Metadata holds the receipt id and proof plus any caller-defined members.
type Metadata struct {
	ReceiptID  string
	Proof      *Proof
	Extensions map[string]any
}

// Proof asserts how and by whom a receipt was signed. Generation-0 fills
// Signature (base64url); Generation-1 fills HashSHA256 and SignatureB64
// (standard base64) and accepts a legacy base64url Signature on verify.
type Proof struct {
	Alg          string
	Canonical    string
	SignerID     string
	Kid          string
	HashSHA256   string
	SignatureB64 string
	Signature    string
	Extensions   map[string]any
}

// UnsignedInput is the caller-side description of an operation outcome.
type UnsignedInput struct {
	Verb     string
	Version  string
	X402     any
	Trace    any
	Payload  any
	Status   Status
	Result   any
	Error    any
	Metadata map[string]any
}

// BuildUnsigned constructs a fresh unsigned receipt. The metadata map is
// copied; a "proof" or "receipt_id" member in it is interpreted like JSON.
func BuildUnsigned(in UnsignedInput) *Receipt {
	r := &Receipt{
		Verb:    in.Verb,
		Version: in.Version,
		X402:    in.X402,
		Trace:   in.Trace,
		Payload: in.Payload,
		Status:  in.Status,
		Result:  in.Result,
		Error:   in.Error,
	}
	if in.Metadata != nil {
		r.Metadata = metadataFromMap(in.Metadata)
	}
	return r
}

// AttachProof returns a copy of r whose metadata carries p. Neither r nor p
// is modified and the previous proof, of either generation, is replaced.
func AttachProof(r *Receipt, p *Proof) *Receipt {
	next := r.Clone()
	if next.Metadata == nil {
		next.Metadata = &Metadata{}
	}
	delete(next.Metadata.Extensions, "proof")
	next.Metadata.Proof = p.Clone()
	return next
}

// Proof returns the receipt's proof, or nil.
func (r *Receipt) Proof() *Proof {
	if r == nil || r.Metadata == nil {
		return nil
	}
	return r.Metadata.Proof
}

// Clone copies the receipt, its metadata and its proof. Payload values are
// shared.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return &Receipt{}
	}
	next := *r
	next.Extensions = maps.Clone(r.Extensions)
	next.Metadata = r.Metadata.Clone()
	return &next
}

func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	return &Metadata{
		ReceiptID:  m.ReceiptID,
		Proof:      m.Proof.Clone(),
		Extensions: maps.Clone(m.Extensions),
	}
}

func (m *Metadata) empty() bool {
	return m == nil || (m.ReceiptID == "" && m.Proof == nil && len(m.Extensions) == 0)
}

func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	next := *p
	next.Extensions = maps.Clone(p.Extensions)
	return &next
}

// View renders the receipt as the JSON-shaped value that is canonicalized
// and marshaled.
func (r *Receipt) View() map[string]any {
	return r.view(viewFull)
}

// viewDirect drops metadata.proof and then empty metadata. viewDigest drops
// metadata.receipt_id and the proof's hash and signature members.
type viewMode int

const (
	viewFull viewMode = iota
	viewDirect
	viewDigest
)

func (r *Receipt) view(mode viewMode) map[string]any {
	out := make(map[string]any, len(r.Extensions)+9)
	maps.Copy(out, r.Extensions)
	putString(out, "verb", r.Verb)
	putString(out, "version", r.Version)
	putString(out, "status", string(r.Status))
	putValue(out, "x402", r.X402)
	putValue(out, "trace", r.Trace)
	putValue(out, "payload", r.Payload)
	putValue(out, "result", r.Result)
	putValue(out, "error", r.Error)
	if r.Metadata != nil {
		if md, ok := r.Metadata.view(mode); ok {
			out["metadata"] = md
		} else {
			delete(out, "metadata")
		}
	}
	return out
}

func (m *Metadata) view(mode viewMode) (map[string]any, bool) {
	out := make(map[string]any, len(m.Extensions)+2)
	maps.Copy(out, m.Extensions)
	switch mode {
	case viewDirect:
		delete(out, "proof")
		putString(out, "receipt_id", m.ReceiptID)
		return out, len(out) > 0
	case viewDigest:
		delete(out, "receipt_id")
	default:
		putString(out, "receipt_id", m.ReceiptID)
	}
	if m.Proof != nil {
		out["proof"] = m.Proof.view(mode == viewDigest)
	}
	return out, true
}

func (p *Proof) view(unsigned bool) map[string]any {
	out := make(map[string]any, len(p.Extensions)+7)
	maps.Copy(out, p.Extensions)
	putString(out, "alg", p.Alg)
	putString(out, "canonical", p.Canonical)
	putString(out, "signer_id", p.SignerID)
	putString(out, "kid", p.Kid)
	if unsigned {
		delete(out, "hash_sha256")
		delete(out, "signature_b64")
		delete(out, "signature")
		return out
	}
	putString(out, "hash_sha256", p.HashSHA256)
	putString(out, "signature_b64", p.SignatureB64)
	putString(out, "signature", p.Signature)
	return out
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func putValue(m map[string]any, key string, v any) {
	if v != nil {
		m[key] = v
	}
}

// FromMap interprets a decoded JSON object as a receipt.
func FromMap(m map[string]any) *Receipt {
	r := &Receipt{}
	for k, v := range m {
		switch k {
		case "verb":
			r.Verb = takeString(r, k, v)
		case "version":
			r.Version = takeString(r, k, v)
		case "status":
			r.Status = Status(takeString(r, k, v))
		case "x402":
			r.X402 = takeValue(r, k, v)
		case "trace":
			r.Trace = takeValue(r, k, v)
		case "payload":
			r.Payload = takeValue(r, k, v)
		case "result":
			r.Result = takeValue(r, k, v)
		case "error":
			r.Error = takeValue(r, k, v)
		case "metadata":
			if mm, ok := v.(map[string]any); ok {
				r.Metadata = metadataFromMap(mm)
			} else {
				r.extend(k, v)
			}
		default:
			r.extend(k, v)
		}
	}
	return r
}

func (r *Receipt) extend(k string, v any) {
	if r.Extensions == nil {
		r.Extensions = make(map[string]any)
	}
	r.Extensions[k] = v
}

func takeString(r *Receipt, k string, v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	r.extend(k, v)
	return ""
}

func takeValue(r *Receipt, k string, v any) any {
	if v == nil {
		r.extend(k, v)
	}
	return v
}

func metadataFromMap(m map[string]any) *Metadata {
	md := &Metadata{}
	for k, v := range m {
		switch k {
		case "receipt_id":
			if s, ok := v.(string); ok && s != "" {
				md.ReceiptID = s
				continue
			}
		case "proof":
			if pm, ok := v.(map[string]any); ok {
				md.Proof = proofFromMap(pm)
				continue
			}
		}
		if md.Extensions == nil {
			md.Extensions = make(map[string]any)
		}
		md.Extensions[k] = v
	}
	return md
}

func proofFromMap(m map[string]any) *Proof {
	p := &Proof{}
	fields := map[string]*string{
		"alg":           &p.Alg,
		"canonical":     &p.Canonical,
		"signer_id":     &p.SignerID,
		"kid":           &p.Kid,
		"hash_sha256":   &p.HashSHA256,
		"signature_b64": &p.SignatureB64,
		"signature":     &p.Signature,
	}
	for k, v := range m {
		if dst, ok := fields[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				*dst = s
				continue
			}
		}
		if p.Extensions == nil {
			p.Extensions = make(map[string]any)
		}
		p.Extensions[k] = v
	}
	return p
}

func (r Receipt) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View())
}

func (r *Receipt) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return coreerr.Wrap(coreerr.ErrInvalidReceipt, err, "decode receipt")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return coreerr.New(coreerr.ErrInvalidReceipt, "receipt must be a JSON object")
	}
	*r = *FromMap(m)
	return nil
}

func (p Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.view(false))
}

func (p *Proof) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return coreerr.Wrap(coreerr.ErrInvalidReceipt, err, "decode proof")
	}
	*p = *proofFromMap(m)
	return nil
}

// Parse decodes a JSON receipt.
func Parse(data []byte) (*Receipt, error) {
	r := &Receipt{}
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}
