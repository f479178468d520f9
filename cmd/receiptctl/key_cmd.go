package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/commandlayer/runtime-core/pkg/crypto"
)

// encodingENS renders a public key as a cl.sig.pub TXT value.
const encodingENS = "ens"

func runKeyCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: receiptctl key <gen|convert> [flags]")
		return 2
	}
	switch args[0] {
	case "gen":
		return runKeyGen(args[1:], stdout, stderr)
	case "convert":
		return runKeyConvert(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown key subcommand: %s\n", args[0])
		return 2
	}
}

// runKeyGen writes a new PKCS#8 private key to --out and prints the public
// key in the requested encoding.
func runKeyGen(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("key gen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var out, to string
	cmd.StringVar(&out, "out", "", "Private key output file (REQUIRED)")
	cmd.StringVar(&to, "to", encodingENS, "Public key encoding: raw32, base64url, spki, pem or ens")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if out == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --out is required")
		return 2
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fail(stderr, err)
	}
	privPEM, err := crypto.EncodePrivateKeyPEM(priv)
	if err != nil {
		return fail(stderr, err)
	}
	if err := os.WriteFile(out, []byte(privPEM), 0o600); err != nil {
		return fail(stderr, fmt.Errorf("write private key: %w", err))
	}
	encoded, err := encodePublic(pub, to)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, encoded)
	return 0
}

// runKeyConvert reads a public or private key in any supported form and
// prints its public key in the requested encoding.
func runKeyConvert(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("key convert", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var in, to string
	cmd.StringVar(&in, "in", "-", "Key file, - for stdin")
	cmd.StringVar(&to, "to", string(crypto.EncodingBase64URL), "Public key encoding: raw32, base64url, spki, pem or ens")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	data, err := readInput(in)
	if err != nil {
		return fail(stderr, err)
	}
	var pub ed25519.PublicKey
	if strings.Contains(string(data), "PRIVATE KEY") {
		priv, err := crypto.ParsePrivateKey(string(data))
		if err != nil {
			return fail(stderr, err)
		}
		pub = priv.Public().(ed25519.PublicKey)
	} else if pub, err = crypto.ParsePublicKey(publicKeyInput(data)); err != nil {
		return fail(stderr, err)
	}

	encoded, err := encodePublic(pub, to)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, encoded)
	return 0
}

func encodePublic(pub ed25519.PublicKey, to string) (string, error) {
	if to == encodingENS {
		return "ed25519:" + crypto.ToBase64URL(pub), nil
	}
	s, err := crypto.EncodePublicKey(pub, crypto.Encoding(to))
	return strings.TrimRight(s, "\n"), err
}
