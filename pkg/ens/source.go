// Package ens resolves a receipt signer's public key and declared canonical
// policy from name-service TXT records.
//
// Providers come in two shapes: ones that read a record for a name directly,
// and ones that first hand out a per-name resolver. Each shape has its own
// capability interface and adapter; SourceFor picks the adapter from the
// interfaces a provider implements.
package ens

import (
	"context"
	"strings"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// TXT record keys.
const (
	KeySigPub        = "cl.sig.pub"
	KeySigKid        = "cl.sig.kid"
	KeySigCanonical  = "cl.sig.canonical"
	KeyReceiptPubPEM = "cl.receipt.pubkey.pem"
)

// TextSource reads a single TXT record. A missing record is "" with a nil
// error.
type TextSource interface {
	Text(ctx context.Context, name, key string) (string, error)
}

// TextReader is a provider that reads records by name. Long records may come
// back split into chunks.
type TextReader interface {
	GetText(ctx context.Context, name, key string) ([]string, error)
}

// Resolver reads records for the name it was obtained for.
type Resolver interface {
	GetText(ctx context.Context, key string) ([]string, error)
}

// ResolverLookup is a provider that hands out per-name resolvers. A nil
// Resolver with a nil error means the name has none.
type ResolverLookup interface {
	GetResolver(ctx context.Context, name string) (Resolver, error)
}

// DirectSource adapts a TextReader.
type DirectSource struct {
	Reader TextReader
}

func (s DirectSource) Text(ctx context.Context, name, key string) (string, error) {
	chunks, err := s.Reader.GetText(ctx, name, key)
	if err != nil {
		return "", coreerr.Wrap(coreerr.ErrENSProvider, err, "read "+key)
	}
	return strings.Join(chunks, ""), nil
}

// ResolverSource adapts a ResolverLookup.
type ResolverSource struct {
	Lookup ResolverLookup
}

func (s ResolverSource) Text(ctx context.Context, name, key string) (string, error) {
	res, err := s.Lookup.GetResolver(ctx, name)
	if err != nil {
		return "", coreerr.Wrap(coreerr.ErrENSProvider, err, "get resolver for "+name)
	}
	if res == nil {
		return "", coreerr.Errorf(coreerr.ErrENSNoResolver, "no resolver for %s", name)
	}
	chunks, err := res.GetText(ctx, key)
	if err != nil {
		return "", coreerr.Wrap(coreerr.ErrENSProvider, err, "read "+key)
	}
	return strings.Join(chunks, ""), nil
}

// SourceFor wraps provider in the adapter matching the capability it
// offers. A TextSource is returned as is; TextReader wins over
// ResolverLookup when both are implemented.
func SourceFor(provider any) (TextSource, error) {
	switch p := provider.(type) {
	case nil:
		return nil, coreerr.New(coreerr.ErrENSProvider, "ENS provider is required")
	case TextSource:
		return p, nil
	case TextReader:
		return DirectSource{Reader: p}, nil
	case ResolverLookup:
		return ResolverSource{Lookup: p}, nil
	default:
		return nil, coreerr.Errorf(coreerr.ErrENSProvider, "unsupported ENS provider %T", provider)
	}
}
