package main

import (
	"flag"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/google/uuid"

	"github.com/commandlayer/runtime-core/pkg/receipt"
)

func runSignCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sign", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		cf        configFlag
		in        string
		keyPath   string
		gen       string
		signerID  string
		kid       string
		canonical string
		traceID   string
	)
	cf.register(cmd)
	cmd.StringVar(&in, "in", "-", "Unsigned receipt JSON file, - for stdin")
	cmd.StringVar(&keyPath, "key", "", "PKCS#8 PEM private key file (REQUIRED)")
	cmd.StringVar(&gen, "gen", "v1", "Signing generation: v0 (direct) or v1 (digest)")
	cmd.StringVar(&signerID, "signer-id", "", "Signer id recorded in the proof (default $RECEIPT_SIGNER_ID)")
	cmd.StringVar(&kid, "kid", "", "Key id recorded in the proof (default $RECEIPT_KID)")
	cmd.StringVar(&canonical, "canonical", "", "Canonical identifier (default $RECEIPT_CANONICAL)")
	cmd.StringVar(&traceID, "trace-id", "", "Set trace.trace_id before signing; \"auto\" generates a UUID")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if keyPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --key is required")
		return 2
	}
	cfg, err := cf.load(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	if signerID == "" {
		signerID = cfg.SignerID
	}
	if kid == "" {
		kid = cfg.Kid
	}
	if canonical == "" {
		canonical = cfg.Canonical
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return fail(stderr, fmt.Errorf("read key: %w", err))
	}
	r, err := readReceipt(in)
	if err != nil {
		return fail(stderr, err)
	}
	switch traceID {
	case "":
	case "auto":
		r = withTraceID(r, uuid.NewString())
	default:
		r = withTraceID(r, traceID)
	}

	var signed *receipt.Receipt
	switch gen {
	case "v0":
		signed, err = receipt.SignDirect(r, receipt.DirectSignOptions{
			PrivateKey: string(keyPEM),
			SignerID:   signerID,
			Kid:        kid,
			Canonical:  canonical,
		})
	case "v1":
		signed, err = receipt.SignDigest(r, receipt.SignOptions{
			PrivateKey: string(keyPEM),
			SignerID:   signerID,
			Kid:        kid,
			Canonical:  canonical,
		})
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown generation %q (want v0 or v1)\n", gen)
		return 2
	}
	if err != nil {
		return fail(stderr, err)
	}

	if err := printJSON(stdout, signed); err != nil {
		return fail(stderr, err)
	}
	return 0
}

// withTraceID returns a copy of r whose trace object carries id. A trace
// that is not an object is replaced.
func withTraceID(r *receipt.Receipt, id string) *receipt.Receipt {
	next := r.Clone()
	trace := map[string]any{}
	if m, ok := r.Trace.(map[string]any); ok {
		maps.Copy(trace, m)
	}
	trace["trace_id"] = id
	next.Trace = trace
	delete(next.Extensions, "trace")
	return next
}
