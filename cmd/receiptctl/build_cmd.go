package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/commandlayer/runtime-core/pkg/receipt"
	"github.com/commandlayer/runtime-core/pkg/request"
)

// runBuildCmd turns a verb request body and an optional result document into
// an unsigned receipt.
func runBuildCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("build", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		cf         configFlag
		reqPath    string
		resultPath string
		verb       string
		version    string
		status     string
	)
	cf.register(cmd)
	cmd.StringVar(&reqPath, "request", "-", "Request body JSON file, - for stdin")
	cmd.StringVar(&resultPath, "result", "", "Result JSON file")
	cmd.StringVar(&verb, "verb", "", "Verb name (REQUIRED)")
	cmd.StringVar(&version, "version", "", "Verb version (REQUIRED)")
	cmd.StringVar(&status, "status", string(receipt.StatusSuccess), "Receipt status")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if verb == "" || version == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --verb and --version are required")
		return 2
	}
	if _, err := cf.load(stderr); err != nil {
		return fail(stderr, err)
	}

	doc, err := readJSON(reqPath)
	if err != nil {
		return fail(stderr, err)
	}
	body, ok := doc.(map[string]any)
	if !ok && doc != nil {
		return fail(stderr, errors.New("request body must be a JSON object"))
	}
	norm := request.Normalize(body)

	in := receipt.UnsignedInput{
		Verb:    verb,
		Version: version,
		X402:    norm.X402,
		Trace:   norm.Trace,
		Payload: norm.Payload,
		Status:  receipt.Status(status),
	}
	if resultPath != "" {
		if in.Result, err = readJSON(resultPath); err != nil {
			return fail(stderr, err)
		}
	}

	if err := printJSON(stdout, receipt.BuildUnsigned(in)); err != nil {
		return fail(stderr, err)
	}
	return 0
}
