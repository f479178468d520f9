// Package schema fetches, compiles and caches the JSON Schemas that describe
// verb requests and receipts.
//
// Schemas live under
//
//	{host}/schemas/{tier}/{verb}/{version}/{request|receipt}.schema.json
//
// and every fetch is retried once against the host with its leading "www."
// toggled. Fetched documents and compiled validators are memoized for the
// lifetime of the Client; concurrent identical requests share one in-flight
// call.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
	"github.com/commandlayer/runtime-core/pkg/observability"
)

const (
	// DefaultTimeout bounds each fetch attempt.
	DefaultTimeout = 5 * time.Second

	maxSchemaBytes = 8 << 20
)

// Options configures a Client.
type Options struct {
	SchemaHost string
	// Timeout applies per attempt. Defaults to DefaultTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
	obs     *observability.Provider

	fetches    singleflight.Group
	validators singleflight.Group

	mu       sync.RWMutex
	docs     map[string][]byte
	compiled map[string]*Validator
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.SchemaHost)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid schema host %q", opts.SchemaHost)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	obs, err := observability.New("schema")
	if err != nil {
		return nil, err
	}
	logger := obs.Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "schema")
	}
	return &Client{
		base:     base,
		timeout:  timeout,
		http:     hc,
		logger:   logger,
		obs:      obs,
		docs:     make(map[string][]byte),
		compiled: make(map[string]*Validator),
	}, nil
}

// FetchJSON returns the decoded JSON document at rawURL. Numbers decode as
// json.Number.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (any, error) {
	raw, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSchemaFetch, err, "decode schema")
	}
	return v, nil
}

// fetch returns the raw document, single-flighting concurrent calls for the
// same URL. The shared call is detached from the first caller's context;
// each caller can still stop waiting on its own.
func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	c.mu.RLock()
	raw, ok := c.docs[rawURL]
	c.mu.RUnlock()
	if ok {
		return raw, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan(rawURL, func() (any, error) {
		raw, err := c.fetchWithFallback(detached, rawURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.docs[rawURL] = raw
		c.mu.Unlock()
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fetchWithFallback(ctx context.Context, rawURL string) ([]byte, error) {
	candidates, err := candidateURLs(rawURL)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, u := range candidates {
		raw, err := c.attempt(ctx, u)
		if err == nil {
			return raw, nil
		}
		c.logger.DebugContext(ctx, "schema fetch attempt failed", "url", u, "error", err)
		lastErr = err
	}
	return nil, coreerr.Wrap(coreerr.ErrSchemaFetch, lastErr, "fetch "+rawURL)
}

func (c *Client) attempt(ctx context.Context, u string) (raw []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, done := c.obs.TrackOperation(ctx, "schema.fetch", attribute.String("url.full", u))
	defer func() { done(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("schema fetch failed (%d) for %s", resp.StatusCode, u)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(ct), "application/json") {
		if ct == "" {
			ct = "unknown"
		}
		return nil, fmt.Errorf("unexpected content-type for schema: %s", ct)
	}
	raw, err = io.ReadAll(io.LimitReader(resp.Body, maxSchemaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read schema body: %w", err)
	}
	if len(raw) > maxSchemaBytes {
		return nil, fmt.Errorf("schema at %s exceeds %d bytes", u, maxSchemaBytes)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("schema at %s is not valid JSON", u)
	}
	return raw, nil
}

// candidateURLs returns rawURL followed by the same URL with the leading
// "www." of its hostname toggled.
func candidateURLs(rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, coreerr.Errorf(coreerr.ErrSchemaFetch, "invalid schema URL %q", rawURL)
	}
	alt := *u
	alt.Host = swapWWW(u.Hostname())
	if port := u.Port(); port != "" {
		alt.Host += ":" + port
	}
	return []string{rawURL, alt.String()}, nil
}

func swapWWW(hostname string) string {
	if rest, ok := strings.CutPrefix(hostname, "www."); ok {
		return rest
	}
	return "www." + hostname
}
