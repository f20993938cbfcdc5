// Package uri implements the URI normalisation and audience containment rules
// shared by the subject-token validators and the access-token validator.
package uri

import (
	"net/url"
	"strings"

	"github.com/jeswr/lws-go/pkg/errors"
)

// Normalize parses an absolute URI and returns its normalised form: lowercase
// scheme and host, default ports removed, and no trailing slash on the path
// except the root.
func Normalize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Parse parses and normalises an absolute URI in place.
func Parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeInvalidURI, "cannot parse %q", raw)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidURI, "identifier %q is not an absolute URI", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u, nil
}

// Origin returns scheme://host[:port] of the normalised URI.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// SameOrigin reports whether two normalised URIs share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	return Origin(a) == Origin(b)
}

// Contains reports whether resource falls inside the namespace rooted at aud:
// same origin, and the resource path equals the audience path or is a
// descendant of it. Both inputs are normalised before comparison.
func Contains(aud, resource string) (bool, error) {
	a, err := Parse(aud)
	if err != nil {
		return false, err
	}
	r, err := Parse(resource)
	if err != nil {
		return false, err
	}
	if !SameOrigin(a, r) {
		return false, nil
	}
	if r.Path == a.Path {
		return true, nil
	}
	prefix := a.Path
	if prefix == "/" {
		prefix = ""
	}
	if !strings.HasPrefix(r.Path, prefix+"/") {
		return false, nil
	}
	// A dot segment in the resource path could escape the audience namespace.
	for _, seg := range strings.Split(r.Path, "/") {
		if seg == ".." || seg == "." {
			return false, nil
		}
	}
	return true, nil
}

// ContainsRealm implements the audience rule for incoming subject tokens: the
// aud claim (string or array) must contain the realm URI by normalised
// equality.
func ContainsRealm(aud []string, realm string) bool {
	normRealm, err := Normalize(realm)
	if err != nil {
		return false
	}
	for _, a := range aud {
		if n, err := Normalize(a); err == nil && n == normRealm {
			return true
		}
	}
	return false
}

// IsLoopback reports whether the URI's host is a loopback address, which the
// resolver exempts from HTTPS-only enforcement for development setups.
func IsLoopback(u *url.URL) bool {
	h := u.Hostname()
	return h == "localhost" || h == "127.0.0.1" || h == "::1" || strings.HasSuffix(h, ".localhost")
}
