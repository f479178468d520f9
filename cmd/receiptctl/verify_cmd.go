package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/commandlayer/runtime-core/pkg/ens"
	"github.com/commandlayer/runtime-core/pkg/receipt"
)

// verifyOutput is the JSON report of `receiptctl verify`.
type verifyOutput struct {
	Generation string          `json:"generation"`
	OK         bool            `json:"ok"`
	Reason     receipt.Reason  `json:"reason,omitempty"`
	Signer     *ens.SignerInfo `json:"signer,omitempty"`
}

// runVerifyCmd checks a signed receipt against a key file or the signer's
// ENS records.
//
// Generation-0 receipts only ever report ok or not. Generation-1 receipts
// report the first failing check as a reason token. When --ens-name is set
// and the signer declares a canonical policy, a receipt that verifies must
// also match it.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		cf         configFlag
		in         string
		pubPath    string
		gen        string
		canonicals string
		kid        string
		signerID   string
		ensRecords string
		ensName    string
		ensPEM     bool
	)
	cf.register(cmd)
	cmd.StringVar(&in, "in", "-", "Signed receipt JSON file, - for stdin")
	cmd.StringVar(&pubPath, "pub", "", "Public key file (PEM, SPKI DER or base64url raw key)")
	cmd.StringVar(&gen, "gen", "", "Signing generation: v0 or v1 (default: from the proof's alg)")
	cmd.StringVar(&canonicals, "canonical", "", "Comma-separated allowed canonical identifiers")
	cmd.StringVar(&kid, "kid", "", "Require this key id (v1)")
	cmd.StringVar(&signerID, "signer-id", "", "Require this signer id (v1)")
	cmd.StringVar(&ensRecords, "ens-records", "", "YAML file of ENS TXT records")
	cmd.StringVar(&ensName, "ens-name", "", "ENS name of the signer")
	cmd.BoolVar(&ensPEM, "ens-pem", false, "Verify with the signer's cl.receipt.pubkey.pem record only (v1)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if pubPath == "" && ensName == "" {
		_, _ = fmt.Fprintln(stderr, "Error: one of --pub or --ens-name is required")
		return 2
	}
	if ensName != "" && ensRecords == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --ens-name requires --ens-records")
		return 2
	}
	cfg, err := cf.load(stderr)
	if err != nil {
		return fail(stderr, err)
	}

	r, err := readReceipt(in)
	if err != nil {
		return fail(stderr, err)
	}
	if gen == "" {
		gen = receipt.GenerationV1.String()
		if g, ok := receipt.GenerationOf(r.Proof()); ok {
			gen = g.String()
		}
	}
	if gen != "v0" && gen != "v1" {
		_, _ = fmt.Fprintf(stderr, "Error: unknown generation %q (want v0 or v1)\n", gen)
		return 2
	}
	var allowed []string
	if canonicals != "" {
		allowed = strings.Split(canonicals, ",")
	}

	var pub any
	if pubPath != "" {
		data, err := os.ReadFile(pubPath)
		if err != nil {
			return fail(stderr, fmt.Errorf("read public key: %w", err))
		}
		pub = publicKeyInput(data)
	}

	ctx := context.Background()
	var src ens.TextSource
	if ensName != "" {
		var closeSrc func()
		if src, closeSrc, err = openENS(cfg, ensRecords); err != nil {
			return fail(stderr, err)
		}
		defer closeSrc()
	}

	out := verifyOutput{Generation: gen}
	switch {
	case gen == "v0":
		var canonical string
		if len(allowed) > 0 {
			canonical = allowed[0]
		}
		if pub == nil {
			info, err := ens.ResolveSigner(ctx, src, ensName)
			if err != nil {
				return fail(stderr, err)
			}
			pub, out.Signer = info.PublicKey, info
		}
		out.OK = receipt.VerifyDirect(r, receipt.DirectVerifyOptions{PublicKey: pub, Canonical: canonical})

	case ensPEM:
		if src == nil {
			return fail(stderr, errors.New("--ens-pem requires --ens-name"))
		}
		res, err := ens.VerifyWithENS(ctx, src, r, ens.VerifyOptions{SignerName: ensName, AllowedCanonicals: allowed})
		if err != nil {
			return fail(stderr, err)
		}
		out.OK, out.Reason = res.OK, res.Reason

	case pub == nil && kid == "" && signerID == "" && allowed == nil:
		res, info, err := ens.VerifySigner(ctx, src, r, ensName)
		if err != nil {
			return fail(stderr, err)
		}
		out.OK, out.Reason, out.Signer = res.OK, res.Reason, info

	default:
		if pub == nil {
			info, err := ens.ResolveSigner(ctx, src, ensName)
			if err != nil {
				return fail(stderr, err)
			}
			pub, out.Signer = info.PublicKey, info
			if kid == "" {
				kid = info.Kid
			}
		}
		res := receipt.VerifyDigest(r, receipt.VerifyOptions{
			PublicKey:         pub,
			AllowedCanonicals: allowed,
			RequireKid:        kid,
			RequireSignerID:   signerID,
		})
		if res.OK && src != nil {
			if out.Signer == nil {
				info, err := ens.ResolveSigner(ctx, src, ensName)
				if err != nil {
					return fail(stderr, err)
				}
				out.Signer = info
			}
			if out.Signer.Canonical != "" {
				res = receipt.EnforceCanonicalFromENS(r, out.Signer.Canonical)
			}
		}
		out.OK, out.Reason = res.OK, res.Reason
	}

	if err := printJSON(stdout, out); err != nil {
		return fail(stderr, err)
	}
	if !out.OK {
		return 1
	}
	return 0
}

// publicKeyInput passes text key files on as strings and anything else as
// DER bytes.
func publicKeyInput(data []byte) any {
	text := strings.TrimSpace(string(data))
	if strings.Contains(text, "-----BEGIN") {
		return text
	}
	if len(data) == 32 {
		return data
	}
	for _, c := range text {
		if !(c == '-' || c == '_' || c == '=' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return data
		}
	}
	return text
}
