package identifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/httpcc"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/uri"
)

const acceptHeader = "application/ld+json, application/json"

// Resolver fetches Controlled Identifier Documents over HTTP(S).
type Resolver struct {
	client    *http.Client
	httpsOnly bool
	maxBytes  int64
	timeout   time.Duration
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// HTTPSOnly restricts resolution to https identifiers, with a standing
	// exemption for loopback hosts.
	HTTPSOnly bool
	// MaxBytes caps the document size. Zero selects 10 KiB.
	MaxBytes int64
	// Timeout bounds a single fetch. Zero selects 5 s.
	Timeout time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// NewResolver creates a document resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10240
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Resolver{
		client:    opts.Client,
		httpsOnly: opts.HTTPSOnly,
		maxBytes:  opts.MaxBytes,
		timeout:   opts.Timeout,
	}
}

// ResolveCID fetches and structurally validates the document behind an
// identifier. The second return value is the upstream Cache-Control max-age,
// or zero when the response carried no cacheability hint. Upstream failures
// are surfaced, never retried here.
func (r *Resolver) ResolveCID(ctx context.Context, rawURI string) (*Document, time.Duration, error) {
	u, err := uri.Parse(rawURI)
	if err != nil {
		return nil, 0, err
	}
	switch u.Scheme {
	case "https":
	case "http":
		if r.httpsOnly && !uri.IsLoopback(u) {
			return nil, 0, errors.Newf(errors.ErrCodeHTTPSRequired, "identifier %q must use https", rawURI)
		}
	default:
		return nil, 0, errors.Newf(errors.ErrCodeInvalidURI, "identifier scheme %q is not resolvable", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInvalidURI, "cannot build document request")
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, 0, errors.Wrapf(err, errors.ErrCodeTimeout, "document fetch exceeded %s", r.timeout)
		}
		return nil, 0, errors.Wrap(err, errors.ErrCodeFetchFailed, "document fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, errors.Newf(errors.ErrCodeFetchFailed, "document fetch returned status %d", resp.StatusCode).
			WithDetails("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, 0, errors.Wrapf(err, errors.ErrCodeTimeout, "document read exceeded %s", r.timeout)
		}
		return nil, 0, errors.Wrap(err, errors.ErrCodeFetchFailed, "document read failed")
	}
	if int64(len(body)) > r.maxBytes {
		return nil, 0, errors.Newf(errors.ErrCodeDocumentTooLarge, "document exceeds %d bytes", r.maxBytes)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInvalidDocument, "document is not valid JSON")
	}
	if err := doc.Validate(rawURI); err != nil {
		return nil, 0, err
	}

	return &doc, responseMaxAge(resp), nil
}

// responseMaxAge extracts the Cache-Control max-age directive.
func responseMaxAge(resp *http.Response) time.Duration {
	cc := resp.Header.Get("Cache-Control")
	if cc == "" {
		return 0
	}
	directives, err := httpcc.ParseResponse(cc)
	if err != nil {
		return 0
	}
	if maxAge, ok := directives.MaxAge(); ok {
		return time.Duration(maxAge) * time.Second
	}
	return 0
}

// VerificationKey resolves the identifier and extracts the key named by kid.
func (r *Resolver) VerificationKey(ctx context.Context, rawURI, kid string) (*JWK, error) {
	doc, _, err := r.ResolveCID(ctx, rawURI)
	if err != nil {
		return nil, err
	}
	vm := doc.VerificationMethodByKid(kid)
	if vm == nil {
		return nil, errors.Newf(errors.ErrCodeNoVerificationMethod, "no verification method %q in %s", kid, rawURI)
	}
	return vm.PublicKeyJwk, nil
}
