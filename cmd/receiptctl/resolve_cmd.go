package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/commandlayer/runtime-core/pkg/ens"
)

func runResolveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("resolve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		cf         configFlag
		ensRecords string
		name       string
	)
	cf.register(cmd)
	cmd.StringVar(&ensRecords, "ens-records", "", "YAML file of ENS TXT records (REQUIRED)")
	cmd.StringVar(&name, "name", "", "ENS name of the signer (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if ensRecords == "" || name == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --ens-records and --name are required")
		return 2
	}
	cfg, err := cf.load(stderr)
	if err != nil {
		return fail(stderr, err)
	}

	src, closeSrc, err := openENS(cfg, ensRecords)
	if err != nil {
		return fail(stderr, err)
	}
	defer closeSrc()

	info, err := ens.ResolveSigner(context.Background(), src, name)
	if err != nil {
		return fail(stderr, err)
	}
	if err := printJSON(stdout, info); err != nil {
		return fail(stderr, err)
	}
	return 0
}
