package parser

import (
	"fmt"
	"net/url"
	"strings"
)

// URLAnalyzer interprets a link relative to the page it was found on.
type URLAnalyzer struct {
	raw string
	u   *url.URL
}

// CanParse reports whether raw resolves against base to an absolute URL.
// It never panics; malformed input yields false.
func CanParse(raw, base string) bool {
	_, err := resolve(raw, base)
	return err == nil
}

// NewURLAnalyzer resolves raw against base. An empty base requires raw to be absolute.
func NewURLAnalyzer(raw, base string) (*URLAnalyzer, error) {
	u, err := resolve(raw, base)
	if err != nil {
		return nil, err
	}
	return &URLAnalyzer{raw: raw, u: u}, nil
}

// IsHypertext is true for http and https URLs only.
func (a *URLAnalyzer) IsHypertext() bool {
	return a.u.Scheme == "http" || a.u.Scheme == "https"
}

// IsSamePage reports whether target, resolved against this URL, addresses the
// same origin, path and query. Fragments are ignored.
func (a *URLAnalyzer) IsSamePage(target string) bool {
	other, err := resolve(target, a.u.String())
	if err != nil {
		return false
	}
	return bare(a.u) == bare(other)
}

// BarePageURL returns origin + path + query with the fragment removed.
func (a *URLAnalyzer) BarePageURL() string {
	return bare(a.u)
}

// String returns the resolved URL including its fragment.
func (a *URLAnalyzer) String() string {
	return a.u.String()
}

// Canonicalize is a convenience for BarePageURL on an absolute URL.
func Canonicalize(raw string) (string, error) {
	a, err := NewURLAnalyzer(raw, "")
	if err != nil {
		return "", err
	}
	return a.BarePageURL(), nil
}

func resolve(raw, base string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	resolved := (&url.URL{}).ResolveReference(ref)
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if !baseURL.IsAbs() {
			return nil, fmt.Errorf("base url %q is not absolute", base)
		}
		resolved = baseURL.ResolveReference(ref)
	}
	if !resolved.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", raw)
	}
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	if isSpecial(resolved.Scheme) {
		if resolved.Opaque != "" || resolved.Hostname() == "" {
			return nil, fmt.Errorf("url %q has no host", raw)
		}
		if port := resolved.Port(); port != "" && !validPort(port) {
			return nil, fmt.Errorf("url %q has invalid port", raw)
		}
	}
	return resolved, nil
}

func bare(u *url.URL) string {
	c := url.URL{Scheme: u.Scheme, Opaque: u.Opaque, User: u.User, Host: u.Host, Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}
	if isSpecial(u.Scheme) {
		c.User = nil
		c.Host = host(u)
		if c.Path == "" {
			c.Path = "/"
			c.RawPath = ""
		}
	}
	return c.String()
}

// host lowercases the host and drops the scheme's default port.
func host(u *url.URL) string {
	h := strings.TrimSuffix(strings.ToLower(u.Host), ":")
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		h = strings.TrimSuffix(h, ":"+port)
	}
	return h
}

func isSpecial(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

func validPort(port string) bool {
	if len(port) > 5 {
		return false
	}
	n := 0
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return n <= 65535
}
