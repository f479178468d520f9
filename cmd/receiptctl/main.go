// Command receiptctl canonicalizes, signs and verifies receipts, resolves
// signer records and validates documents against verb schemas.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// stdin is read when an input path is "-".
var stdin io.Reader = os.Stdin

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success
//	1 = verification or validation failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "build":
		return runBuildCmd(args[2:], stdout, stderr)
	case "canonicalize", "canon":
		return runCanonicalizeCmd(args[2:], stdout, stderr)
	case "sign":
		return runSignCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "key":
		return runKeyCmd(args[2:], stdout, stderr)
	case "resolve":
		return runResolveCmd(args[2:], stdout, stderr)
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "USAGE:")
	_, _ = fmt.Fprintln(w, "  receiptctl <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "RECEIPTS:")
	printCommand(w, "build", "Build an unsigned receipt from a request body (--request, --verb)")
	printCommand(w, "canonicalize", "Print the canonical form or hash of a receipt (--gen, --hash)")
	printCommand(w, "sign", "Sign a receipt (--key, --gen v0|v1, --trace-id auto)")
	printCommand(w, "verify", "Verify a receipt (--pub or --ens-name with --ens-records)")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "KEYS & SIGNERS:")
	printCommand(w, "key", "Generate or convert Ed25519 keys (gen|convert)")
	printCommand(w, "resolve", "Resolve signer records for an ENS name (--ens-records, --name)")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "SCHEMAS:")
	printCommand(w, "validate", "Validate a document against a verb schema (--tier, --verb, --version)")
	_, _ = fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-13s %s\n", name, desc)
}
