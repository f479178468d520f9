package ens

import (
	"context"
	"strings"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
	"github.com/commandlayer/runtime-core/pkg/receipt"
)

// VerifyOptions selects the signer record used by VerifyWithENS.
type VerifyOptions struct {
	SignerName string
	// TxtKey defaults to cl.receipt.pubkey.pem.
	TxtKey string
	// AllowedCanonicals defaults to [receipt.DefaultCanonical].
	AllowedCanonicals []string
}

// VerifyWithENS verifies a Generation-1 receipt against the PEM public key a
// signer publishes in TXT. Lookup problems are errors; verification
// outcomes, including failures, are in the result.
func VerifyWithENS(ctx context.Context, src TextSource, r *receipt.Receipt, opts VerifyOptions) (receipt.VerifyResult, error) {
	if src == nil {
		return receipt.VerifyResult{}, coreerr.New(coreerr.ErrENSProvider, "ENS provider is required")
	}
	if opts.SignerName == "" {
		return receipt.VerifyResult{}, coreerr.New(coreerr.ErrENSProvider, "signer ENS name is required")
	}
	key := opts.TxtKey
	if key == "" {
		key = KeyReceiptPubPEM
	}
	allowed := opts.AllowedCanonicals
	if allowed == nil {
		allowed = []string{receipt.DefaultCanonical}
	}

	txt, err := src.Text(ctx, opts.SignerName, key)
	if err != nil {
		return receipt.VerifyResult{}, err
	}
	pemText := unescapePEM(txt)
	if !strings.Contains(pemText, "BEGIN") {
		return receipt.VerifyResult{}, coreerr.Errorf(coreerr.ErrENSInvalidRecord, "missing or invalid PEM in ENS TXT %s", key)
	}

	return receipt.VerifyDigest(r, receipt.VerifyOptions{
		PublicKey:         pemText,
		AllowedCanonicals: allowed,
	}), nil
}

// VerifySigner resolves name's signer records, verifies r against the
// published key and kid, and then enforces the declared canonical policy
// when the signer publishes one.
func VerifySigner(ctx context.Context, src TextSource, r *receipt.Receipt, name string) (receipt.VerifyResult, *SignerInfo, error) {
	info, err := ResolveSigner(ctx, src, name)
	if err != nil {
		return receipt.VerifyResult{}, nil, err
	}
	res := receipt.VerifyDigest(r, receipt.VerifyOptions{
		PublicKey:  info.PublicKey,
		RequireKid: info.Kid,
	})
	if !res.OK || info.Canonical == "" {
		return res, info, nil
	}
	return receipt.EnforceCanonicalFromENS(r, info.Canonical), info, nil
}
