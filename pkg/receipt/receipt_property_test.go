package receipt

import (
	"crypto/ed25519"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: sign then verify succeeds for either generation, and changing
// the payload afterwards is always detected.
func TestSignVerifyProperties(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	build := func(verb string, payload map[string]string) *Receipt {
		p := make(map[string]any, len(payload))
		for k, v := range payload {
			p[k] = v
		}
		return BuildUnsigned(UnsignedInput{Verb: verb, Version: "1.0.0", Payload: p, Status: StatusSuccess})
	}

	properties.Property("digest generation round trips and detects tampering", prop.ForAll(
		func(verb string, payload map[string]string) bool {
			signed, err := SignDigest(build(verb, payload), SignOptions{PrivateKey: priv, SignerID: "s"})
			if err != nil {
				return false
			}
			if !VerifyDigest(signed, VerifyOptions{PublicKey: pub}).OK {
				return false
			}
			tampered := signed.Clone()
			tampered.Payload = map[string]any{"tampered": verb}
			return VerifyDigest(tampered, VerifyOptions{PublicKey: pub}).Reason == ReasonHashMismatch
		},
		gen.Identifier(),
		gen.MapOf(gen.AnyString(), gen.AnyString()),
	))

	properties.Property("direct generation round trips and detects tampering", prop.ForAll(
		func(verb string, payload map[string]string) bool {
			signed, err := SignDirect(build(verb, payload), DirectSignOptions{PrivateKey: priv, SignerID: "s"})
			if err != nil {
				return false
			}
			if !VerifyDirect(signed, DirectVerifyOptions{PublicKey: pub}) {
				return false
			}
			tampered := signed.Clone()
			tampered.Payload = map[string]any{"tampered": verb}
			return !VerifyDirect(tampered, DirectVerifyOptions{PublicKey: pub})
		},
		gen.Identifier(),
		gen.MapOf(gen.AnyString(), gen.AnyString()),
	))

	properties.TestingRun(t)
}
