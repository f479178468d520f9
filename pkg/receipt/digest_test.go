package receipt

import (
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
	"github.com/commandlayer/runtime-core/pkg/crypto"
)

func TestSignDigest_RoundTrip(t *testing.T) {
	pub, privPEM := testKeys(t)
	unsigned := sampleReceipt()

	signed, err := SignDigest(unsigned, SignOptions{PrivateKey: privPEM, SignerID: "runtime.commandlayer.eth", Kid: "k1"})
	require.NoError(t, err)

	p := signed.Proof()
	require.NotNil(t, p)
	assert.Equal(t, AlgEd25519SHA256, p.Alg)
	assert.Equal(t, DefaultCanonical, p.Canonical)
	assert.Equal(t, "k1", p.Kid)
	assert.Len(t, p.HashSHA256, 64)
	assert.Equal(t, p.HashSHA256, signed.Metadata.ReceiptID)
	assert.Nil(t, unsigned.Metadata, "input must not be mutated")

	_, hash := ComputeCanonicalAndHash(signed)
	assert.Equal(t, p.HashSHA256, hash)

	pemPub, err := crypto.Raw32ToPEM(pub)
	require.NoError(t, err)
	for name, key := range map[string]any{"raw": []byte(pub), "base64url": crypto.ToBase64URL(pub), "pem": pemPub} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, VerifyResult{OK: true}, VerifyDigest(signed, VerifyOptions{PublicKey: key}))
		})
	}
}

func TestSignDigest_SurvivesJSONTransport(t *testing.T) {
	pub, privPEM := testKeys(t)
	r, err := Parse([]byte(`{"verb":"summarize","version":"1.0.0","status":"success","result":null,"payload":{"n":1.50,"s":"é"},"custom":{"z":1,"a":2},"metadata":{"run":"r1"}}`))
	require.NoError(t, err)

	signed, err := SignDigest(r, SignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)

	wire, err := json.Marshal(signed)
	require.NoError(t, err)
	back, err := Parse(wire)
	require.NoError(t, err)

	assert.True(t, VerifyDigest(back, VerifyOptions{PublicKey: pub}).OK)
	assert.Equal(t, "r1", back.Metadata.Extensions["run"])
}

func TestSignDigest_ReplacesExistingProofAndReceiptID(t *testing.T) {
	pub, privPEM := testKeys(t)
	r := BuildUnsigned(UnsignedInput{
		Verb:     "v",
		Metadata: map[string]any{"receipt_id": "old", "proof": map[string]any{"alg": "ed25519", "signature": "x", "extra": 1}},
	})

	signed, err := SignDigest(r, SignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)
	assert.Empty(t, signed.Proof().Signature)
	assert.Nil(t, signed.Proof().Extensions)
	assert.NotEqual(t, "old", signed.Metadata.ReceiptID)
	assert.True(t, VerifyDigest(signed, VerifyOptions{PublicKey: pub}).OK)
}

func TestSignDigest_Errors(t *testing.T) {
	_, privPEM := testKeys(t)

	_, err := SignDigest(sampleReceipt(), SignOptions{PrivateKey: privPEM, SignerID: "s", Canonical: "json.other.v1"})
	assert.True(t, coreerr.HasCode(err, coreerr.ErrUnsupportedCanonical))

	_, err = SignDigest(sampleReceipt(), SignOptions{PrivateKey: "garbage", SignerID: "s"})
	assert.True(t, coreerr.HasCode(err, coreerr.ErrInvalidPEM))

	_, err = SignDigest(sampleReceipt(), SignOptions{PrivateKey: []byte{1, 2, 3}, SignerID: "s"})
	assert.True(t, coreerr.HasCode(err, coreerr.ErrInvalidKey))

	for _, meta := range []string{`null`, `"nope"`} {
		bad, perr := Parse([]byte(`{"verb":"v","metadata":` + meta + `}`))
		require.NoError(t, perr)
		_, err = SignDigest(bad, SignOptions{PrivateKey: privPEM, SignerID: "s"})
		assert.True(t, coreerr.HasCode(err, coreerr.ErrInvalidReceipt), meta)
	}
}

func TestVerifyDigest_Reasons(t *testing.T) {
	pub, privPEM := testKeys(t)
	otherPub, _ := testKeys(t)

	signed, err := SignDigest(sampleReceipt(), SignOptions{PrivateKey: privPEM, SignerID: "signer", Kid: "k1"})
	require.NoError(t, err)

	mutate := func(fn func(r *Receipt)) *Receipt {
		c := signed.Clone()
		fn(c)
		return c
	}

	tests := []struct {
		name string
		r    *Receipt
		opts VerifyOptions
		want Reason
	}{
		{"missing proof", sampleReceipt(), VerifyOptions{PublicKey: pub}, ReasonMissingProof},
		{"nil receipt", nil, VerifyOptions{PublicKey: pub}, ReasonMissingProof},
		{"signer id", signed, VerifyOptions{PublicKey: pub, RequireSignerID: "other"}, ReasonSignerIDMismatch},
		{"kid", signed, VerifyOptions{PublicKey: pub, RequireKid: "k2"}, ReasonKidMismatch},
		{"canonical allow-list", signed, VerifyOptions{PublicKey: pub, AllowedCanonicals: []string{"json.other.v1"}}, ReasonCanonicalNotAllowed},
		{"alg", mutate(func(r *Receipt) { r.Metadata.Proof.Alg = "ed25519" }), VerifyOptions{PublicKey: pub}, ReasonUnsupportedAlg},
		{"short hash", mutate(func(r *Receipt) { r.Metadata.Proof.HashSHA256 = "abc" }), VerifyOptions{PublicKey: pub}, ReasonMissingOrInvalidHash},
		{"short non-ascii hash", mutate(func(r *Receipt) { r.Metadata.Proof.HashSHA256 = strings.Repeat("é", 32) }), VerifyOptions{PublicKey: pub}, ReasonMissingOrInvalidHash},
		{"non-ascii hash", mutate(func(r *Receipt) { r.Metadata.Proof.HashSHA256 = strings.Repeat("é", 64) }), VerifyOptions{PublicKey: pub}, ReasonHashMismatch},
		{"absent hash", mutate(func(r *Receipt) { r.Metadata.Proof.HashSHA256 = "" }), VerifyOptions{PublicKey: pub}, ReasonMissingOrInvalidHash},
		{"tampered payload", mutate(func(r *Receipt) { r.Payload = map[string]any{"hello": "mallory"} }), VerifyOptions{PublicKey: pub}, ReasonHashMismatch},
		{"tampered signer", mutate(func(r *Receipt) { r.Metadata.Proof.SignerID = "mallory" }), VerifyOptions{PublicKey: pub}, ReasonHashMismatch},
		{"no signature", mutate(func(r *Receipt) { r.Metadata.Proof.SignatureB64 = "" }), VerifyOptions{PublicKey: pub}, ReasonMissingSignature},
		{"wrong key", signed, VerifyOptions{PublicKey: otherPub}, ReasonBadSignature},
		{"unparseable key", signed, VerifyOptions{PublicKey: 12}, ReasonBadSignature},
		{"garbled signature", mutate(func(r *Receipt) { r.Metadata.Proof.SignatureB64 = "AAAA" }), VerifyOptions{PublicKey: pub}, ReasonBadSignature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := VerifyDigest(tc.r, tc.opts)
			assert.False(t, res.OK)
			assert.Equal(t, tc.want, res.Reason)
		})
	}

	assert.True(t, VerifyDigest(signed, VerifyOptions{PublicKey: pub, RequireSignerID: "signer", RequireKid: "k1"}).OK)
}

func TestVerifyDigest_ReceiptIDIsNotHashed(t *testing.T) {
	pub, privPEM := testKeys(t)
	signed, err := SignDigest(sampleReceipt(), SignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)

	c := signed.Clone()
	c.Metadata.ReceiptID = "anything"
	assert.True(t, VerifyDigest(c, VerifyOptions{PublicKey: pub}).OK)
}

func TestVerifyDigest_LegacySignatureFallback(t *testing.T) {
	pub, privPEM := testKeys(t)
	signed, err := SignDigest(sampleReceipt(), SignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)

	legacy := signed.Clone()
	legacy.Metadata.Proof.Signature = crypto.Base64ToBase64URL(legacy.Metadata.Proof.SignatureB64)
	legacy.Metadata.Proof.SignatureB64 = ""

	assert.Equal(t, VerifyDigest(signed, VerifyOptions{PublicKey: pub}), VerifyDigest(legacy, VerifyOptions{PublicKey: pub}))
	assert.True(t, VerifyDigest(legacy, VerifyOptions{PublicKey: pub}).OK)
}

func TestGenerations_RejectEachOther(t *testing.T) {
	pub, privPEM := testKeys(t)

	v0, err := SignDirect(sampleReceipt(), DirectSignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)
	v1, err := SignDigest(sampleReceipt(), SignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)

	res := VerifyDigest(v0, VerifyOptions{PublicKey: pub})
	assert.False(t, res.OK)
	assert.Equal(t, ReasonUnsupportedAlg, res.Reason)

	assert.False(t, VerifyDirect(v1, DirectVerifyOptions{PublicKey: pub}))
}

func TestEnforceCanonicalFromENS(t *testing.T) {
	_, privPEM := testKeys(t)
	signed, err := SignDigest(sampleReceipt(), SignOptions{PrivateKey: privPEM, SignerID: "s"})
	require.NoError(t, err)

	assert.Equal(t, VerifyResult{Reason: ReasonCanonicalMismatchENS}, EnforceCanonicalFromENS(signed, "other.v1"))
	assert.Equal(t, VerifyResult{Reason: ReasonMissingENSCanonical}, EnforceCanonicalFromENS(signed, ""))
	assert.Equal(t, VerifyResult{Reason: ReasonMissingProof}, EnforceCanonicalFromENS(sampleReceipt(), DefaultCanonical))
	assert.Equal(t, VerifyResult{OK: true}, EnforceCanonicalFromENS(signed, DefaultCanonical))
}

func TestVerifyResult_JSON(t *testing.T) {
	b, err := json.Marshal(VerifyResult{OK: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(b))

	b, err = json.Marshal(VerifyResult{Reason: ReasonHashMismatch})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"reason":"hash_mismatch"}`, string(b))
}

func TestSignDigest_WithSigner(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	base, err := crypto.NewEd25519SignerFromKey(priv, "hsm-1")
	require.NoError(t, err)
	s := &countingSigner{Signer: base}

	signed, err := SignDigest(sampleReceipt(), SignOptions{Signer: s, SignerID: "signer"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, "hsm-1", signed.Proof().Kid)
	assert.True(t, VerifyDigest(signed, VerifyOptions{PublicKey: pub, RequireKid: "hsm-1"}).OK)
}
