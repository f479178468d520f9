package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/commandlayer/runtime-core/pkg/canonicalize"
	"github.com/commandlayer/runtime-core/pkg/receipt"
)

func runCanonicalizeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("canonicalize", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		cf    configFlag
		in    string
		gen   string
		hash  bool
		asDoc bool
	)
	cf.register(cmd)
	cmd.StringVar(&in, "in", "-", "Input JSON file, - for stdin")
	cmd.StringVar(&gen, "gen", "v1", "Signing generation whose canonical form to print: v0 or v1")
	cmd.BoolVar(&hash, "hash", false, "Print the SHA-256 hex of the canonical form instead")
	cmd.BoolVar(&asDoc, "doc", false, "Canonicalize the input as a plain JSON document, not a receipt view")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if _, err := cf.load(stderr); err != nil {
		return fail(stderr, err)
	}

	var canonical string
	switch {
	case asDoc:
		doc, err := readJSON(in)
		if err != nil {
			return fail(stderr, err)
		}
		if gen == "v0" {
			canonical = canonicalize.LocaleSortedKeys(doc)
		} else {
			canonical = canonicalize.SortedKeysV1(doc)
		}
	case gen == "v0":
		r, err := readReceipt(in)
		if err != nil {
			return fail(stderr, err)
		}
		canonical = receipt.DirectCanonical(r)
	case gen == "v1":
		r, err := readReceipt(in)
		if err != nil {
			return fail(stderr, err)
		}
		canonical, _ = receipt.ComputeCanonicalAndHash(r)
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown generation %q (want v0 or v1)\n", gen)
		return 2
	}

	if hash {
		_, _ = fmt.Fprintln(stdout, canonicalize.SHA256Hex(canonical))
	} else {
		_, _ = fmt.Fprintln(stdout, canonical)
	}
	return 0
}
