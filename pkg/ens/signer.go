package ens

import (
	"context"
	"crypto/ed25519"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
	"github.com/commandlayer/runtime-core/pkg/crypto"
)

// SignerInfo is what the receipt engines need to know about a signer.
type SignerInfo struct {
	PublicKey        ed25519.PublicKey `json:"-"`
	PublicKeyEncoded string            `json:"pubkey"`
	Kid              string            `json:"kid,omitempty"`
	Canonical        string            `json:"canonical,omitempty"`
	SignerID         string            `json:"signer_id"`
	Alg              string            `json:"alg"`
}

// ResolveSigner reads the signer records for name. The key comes from
// cl.sig.pub when present, otherwise from the PEM in cl.receipt.pubkey.pem.
func ResolveSigner(ctx context.Context, src TextSource, name string) (*SignerInfo, error) {
	if src == nil {
		return nil, coreerr.New(coreerr.ErrENSProvider, "ENS provider is required")
	}
	if name == "" {
		return nil, coreerr.New(coreerr.ErrENSProvider, "ENS name is required")
	}

	var sigPub, kid, canonical string
	g, gctx := errgroup.WithContext(ctx)
	for key, dst := range map[string]*string{KeySigPub: &sigPub, KeySigKid: &kid, KeySigCanonical: &canonical} {
		key, dst := key, dst
		g.Go(func() error {
			v, err := src.Text(gctx, name, key)
			*dst = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var raw []byte
	if sigPub != "" {
		var err error
		if raw, err = parseSigPub(sigPub); err != nil {
			return nil, err
		}
	} else {
		pemText, err := src.Text(ctx, name, KeyReceiptPubPEM)
		if err != nil {
			return nil, err
		}
		if pemText == "" {
			return nil, coreerr.Errorf(coreerr.ErrENSNoSignerKey, "no signer key TXT records found on %s", name)
		}
		if raw, err = crypto.PEMToRaw32(unescapePEM(pemText)); err != nil {
			return nil, err
		}
	}

	return &SignerInfo{
		PublicKey:        ed25519.PublicKey(raw),
		PublicKeyEncoded: crypto.ToBase64URL(raw),
		Kid:              kid,
		Canonical:        canonical,
		SignerID:         name,
		Alg:              "ed25519",
	}, nil
}

// parseSigPub decodes "ed25519:<base64url raw32>".
func parseSigPub(v string) ([]byte, error) {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || parts[0] != "ed25519" || parts[1] == "" {
		return nil, coreerr.New(coreerr.ErrENSInvalidRecord, "invalid cl.sig.pub format; expected ed25519:<base64url_raw32>")
	}
	raw, err := crypto.FromBase64URL(parts[1])
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrENSInvalidRecord, err, "invalid cl.sig.pub encoding")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, coreerr.Errorf(coreerr.ErrENSInvalidRecord, "invalid cl.sig.pub key length %d, expected 32 bytes", len(raw))
	}
	return raw, nil
}

// unescapePEM turns literal "\n" sequences, common in TXT records, into
// newlines.
func unescapePEM(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `\n`, "\n"))
}
