package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commandlayer/runtime-core/pkg/crypto"
)

const (
	fixtureJSON      = `{"x402":{"b":2,"a":1},"trace":{"z":"last","a":"first"},"payload":{"two":2,"one":1},"verb":"test.verb","version":"v1","status":"ok","result":{"arr":[{"y":2,"x":1}]}}`
	fixtureCanonical = `{"payload":{"one":1,"two":2},"result":{"arr":[{"x":1,"y":2}]},"status":"ok","trace":{"a":"first","z":"last"},"verb":"test.verb","version":"v1","x402":{"a":1,"b":2}}`
	fixtureHash      = "a125bc2ba480dc539a18be254d9dd61f0d991ba98104a7cd7cd0d169f1d50c09"
)

func testKeys(t *testing.T) (ed25519.PublicKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	privPEM, err := crypto.EncodePrivateKeyPEM(priv)
	require.NoError(t, err)
	return pub, privPEM
}

func sampleReceipt() *Receipt {
	return BuildUnsigned(UnsignedInput{
		Verb:    "test.verb",
		Version: "v1",
		X402:    map[string]any{},
		Trace:   map[string]any{},
		Payload: map[string]any{"hello": "world"},
		Status:  StatusSuccess,
		Result:  map[string]any{"ok": true},
	})
}

func TestFixture_BothGenerationsAgreeOnASCII(t *testing.T) {
	r, err := Parse([]byte(fixtureJSON))
	require.NoError(t, err)

	canonical, hash := ComputeCanonicalAndHash(r)
	assert.Equal(t, fixtureCanonical, canonical)
	assert.Equal(t, fixtureHash, hash)
	assert.Equal(t, fixtureCanonical, DirectCanonical(r))
}

func TestParse_KeepsUnknownMembersAndNulls(t *testing.T) {
	doc := `{"verb":"v","version":"","status":"error","result":null,"error":{"code":"E"},"extra":[1,2],` +
		`"metadata":{"receipt_id":"rid","tags":["a"],"proof":{"alg":"ed25519-sha256","hash_sha256":7,"note":"n"}}}`
	r, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "v", r.Verb)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "rid", r.Metadata.ReceiptID)
	assert.Equal(t, AlgEd25519SHA256, r.Proof().Alg)
	assert.Contains(t, r.Extensions, "result")
	assert.Contains(t, r.Extensions, "version")
	assert.Contains(t, r.Proof().Extensions, "hash_sha256")

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(out))
}

func TestParse_RejectsNonObject(t *testing.T) {
	_, err := Parse([]byte(`[1,2]`))
	require.Error(t, err)
	_, err = Parse([]byte(`{`))
	require.Error(t, err)
}

func TestUnsignedView_StripsHashAndSignatures(t *testing.T) {
	r, err := Parse([]byte(`{"verb":"v","metadata":{"receipt_id":"rid","k":1,"proof":{"alg":"a","canonical":"c","signer_id":"s","kid":"k","hash_sha256":"h","signature_b64":"sb","signature":"sig","x":true}}}`))
	require.NoError(t, err)

	want := map[string]any{
		"verb": "v",
		"metadata": map[string]any{
			"k":     json.Number("1"),
			"proof": map[string]any{"alg": "a", "canonical": "c", "signer_id": "s", "kid": "k", "x": true},
		},
	}
	assert.Equal(t, want, UnsignedView(r))
}

func TestUnsignedView_StripsWrongTypedSignatureMembers(t *testing.T) {
	r, err := Parse([]byte(`{"metadata":{"receipt_id":5,"proof":{"alg":"a","signature":false}}}`))
	require.NoError(t, err)

	want := map[string]any{"metadata": map[string]any{"proof": map[string]any{"alg": "a"}}}
	assert.Equal(t, want, UnsignedView(r))
}

func TestAttachProof_DoesNotMutateInput(t *testing.T) {
	r := BuildUnsigned(UnsignedInput{Verb: "v", Metadata: map[string]any{"keep": "me"}})
	p := &Proof{Alg: AlgEd25519, Signature: "sig"}

	signed := AttachProof(r, p)
	require.NotNil(t, signed.Proof())
	assert.Nil(t, r.Proof())
	assert.Equal(t, "me", signed.Metadata.Extensions["keep"])

	p.Signature = "changed"
	assert.Equal(t, "sig", signed.Proof().Signature)
}

func TestBuildUnsigned_CopiesMetadata(t *testing.T) {
	md := map[string]any{"a": 1}
	r := BuildUnsigned(UnsignedInput{Verb: "v", Metadata: md})
	md["b"] = 2
	assert.NotContains(t, r.Metadata.Extensions, "b")
}

func TestGenerationOf(t *testing.T) {
	g, ok := GenerationOf(&Proof{Alg: AlgEd25519})
	assert.True(t, ok)
	assert.Equal(t, GenerationV0, g)

	g, ok = GenerationOf(&Proof{Alg: AlgEd25519SHA256})
	assert.True(t, ok)
	assert.Equal(t, "v1", g.String())

	_, ok = GenerationOf(&Proof{Alg: "rsa"})
	assert.False(t, ok)
	_, ok = GenerationOf(nil)
	assert.False(t, ok)
}
