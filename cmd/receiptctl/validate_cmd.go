package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/commandlayer/runtime-core/pkg/schema"
)

type validateOutput struct {
	Schema string                `json:"schema"`
	Valid  bool                  `json:"valid"`
	Errors []schema.CompactError `json:"errors,omitempty"`
}

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		cf         configFlag
		in         string
		kind       string
		tier       string
		verb       string
		version    string
		schemaHost string
	)
	cf.register(cmd)
	cmd.StringVar(&in, "in", "-", "JSON document file, - for stdin")
	cmd.StringVar(&kind, "kind", string(schema.KindReceipt), "Schema kind: request or receipt")
	cmd.StringVar(&tier, "tier", "", "Schema tier (REQUIRED)")
	cmd.StringVar(&verb, "verb", "", "Verb name (REQUIRED)")
	cmd.StringVar(&version, "version", "", "Verb version (REQUIRED)")
	cmd.StringVar(&schemaHost, "schema-host", "", "Schema host (default $SCHEMA_HOST)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if tier == "" || verb == "" || version == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --tier, --verb and --version are required")
		return 2
	}
	cfg, err := cf.load(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	if schemaHost == "" {
		schemaHost = cfg.SchemaHost
	}

	client, err := schema.NewClient(schema.Options{
		SchemaHost: schemaHost,
		Timeout:    cfg.SchemaTimeout,
	})
	if err != nil {
		return fail(stderr, err)
	}

	ctx := context.Background()
	req := schema.ValidatorRequest{Tier: tier, Verb: verb, Version: version}
	var v *schema.Validator
	switch schema.Kind(kind) {
	case schema.KindRequest:
		v, err = client.RequestValidator(ctx, req)
	case schema.KindReceipt:
		v, err = client.ReceiptValidator(ctx, req)
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown schema kind %q (want request or receipt)\n", kind)
		return 2
	}
	if err != nil {
		return fail(stderr, err)
	}

	data, err := readInput(in)
	if err != nil {
		return fail(stderr, err)
	}
	errs, err := v.ValidateJSON(data)
	if err != nil {
		return fail(stderr, err)
	}

	out := validateOutput{Schema: v.URL, Valid: len(errs) == 0, Errors: errs}
	if err := printJSON(stdout, out); err != nil {
		return fail(stderr, err)
	}
	if !out.Valid {
		return 1
	}
	return 0
}
