package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// Kind selects the request or receipt schema of a verb.
type Kind string

const (
	KindRequest Kind = "request"
	KindReceipt Kind = "receipt"
)

// ValidatorRequest names a verb schema.
type ValidatorRequest struct {
	Tier    string
	Verb    string
	Version string
}

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func (r ValidatorRequest) check() error {
	for field, v := range map[string]string{"tier": r.Tier, "verb": r.Verb} {
		if !safeSegment.MatchString(v) || strings.Contains(v, "..") {
			return coreerr.Errorf(coreerr.ErrInvalidRequest, "invalid %s %q", field, v)
		}
	}
	if _, err := semver.NewVersion(r.Version); err != nil {
		return coreerr.Wrap(coreerr.ErrInvalidRequest, err, fmt.Sprintf("invalid version %q", r.Version))
	}
	return nil
}

// SchemaURL returns the absolute URL of the kind schema for r. Any path on
// the configured host is replaced.
func (c *Client) SchemaURL(kind Kind, r ValidatorRequest) string {
	u := *c.base
	u.RawPath = ""
	u.Path = "/schemas/" + r.Tier + "/" + r.Verb + "/" + r.Version + "/" + string(kind) + ".schema.json"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// RequestValidator returns the compiled request schema for r.
func (c *Client) RequestValidator(ctx context.Context, r ValidatorRequest) (*Validator, error) {
	return c.validator(ctx, KindRequest, r)
}

// ReceiptValidator returns the compiled receipt schema for r.
func (c *Client) ReceiptValidator(ctx context.Context, r ValidatorRequest) (*Validator, error) {
	return c.validator(ctx, KindReceipt, r)
}

func (c *Client) validator(ctx context.Context, kind Kind, r ValidatorRequest) (*Validator, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	key := string(kind) + ":" + r.Tier + ":" + r.Verb + ":" + r.Version

	c.mu.RLock()
	v, ok := c.compiled[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	schemaURL := c.SchemaURL(kind, r)
	detached := context.WithoutCancel(ctx)
	ch := c.validators.DoChan(key, func() (any, error) {
		v, err := c.compile(detached, schemaURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.compiled[key] = v
		c.mu.Unlock()
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Validator), nil
	}
}

func (c *Client) compile(ctx context.Context, schemaURL string) (*Validator, error) {
	raw, err := c.fetch(ctx, schemaURL)
	if err != nil {
		return nil, err
	}

	comp := jsonschema.NewCompiler()
	comp.Draft = jsonschema.Draft2020
	comp.LoadURL = func(ref string) (io.ReadCloser, error) {
		u, err := url.Parse(ref)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("unsupported schema reference %q", ref)
		}
		doc, err := c.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(doc)), nil
	}
	if err := comp.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSchemaCompile, err, "add "+schemaURL)
	}
	s, err := comp.Compile(schemaURL)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSchemaCompile, err, "compile "+schemaURL)
	}
	c.logger.DebugContext(ctx, "schema compiled", "url", schemaURL)
	return &Validator{URL: schemaURL, schema: s}, nil
}

// CompactError is one validation failure.
type CompactError struct {
	InstancePath string `json:"instancePath"`
	Keyword      string `json:"keyword"`
	Message      string `json:"message"`
}

// Validator checks documents against one compiled schema.
type Validator struct {
	URL    string
	schema *jsonschema.Schema
}

// Validate returns nil when doc conforms. doc must be made of the values
// encoding/json produces (maps, slices, strings, float64 or json.Number,
// bools, nil).
func (v *Validator) Validate(doc any) []CompactError {
	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []CompactError{{Message: err.Error()}}
	}

	basic := verr.BasicOutput()
	var all, keyed []CompactError
	for _, e := range basic.Errors {
		ce := CompactError{
			InstancePath: e.InstanceLocation,
			Keyword:      lastSegment(e.KeywordLocation),
			Message:      e.Error,
		}
		all = append(all, ce)
		if ce.Keyword != "" {
			keyed = append(keyed, ce)
		}
	}
	if len(keyed) > 0 {
		return keyed
	}
	if len(all) == 0 {
		return []CompactError{{Message: verr.Message}}
	}
	return all
}

// ValidateJSON decodes raw and validates it.
func (v *Validator) ValidateJSON(raw []byte) ([]CompactError, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidRequest, err, "decode document")
	}
	return v.Validate(doc), nil
}

func lastSegment(keywordLocation string) string {
	if i := strings.LastIndex(keywordLocation, "/"); i >= 0 {
		return keywordLocation[i+1:]
	}
	return keywordLocation
}
