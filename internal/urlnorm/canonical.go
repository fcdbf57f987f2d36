// Package urlnorm canonicalizes crawl URLs and decides whether they are in scope.
// Canonical forms are the identity used by the frontier for uniqueness.
package urlnorm

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Reason identifies why a URL was rejected.
type Reason int

const (
	// MalformedURL is returned for strings that cannot be parsed as absolute URLs
	MalformedURL Reason = iota + 1
	// SchemeNotAllowed is returned for anything but http and https
	SchemeNotAllowed
	// OutOfScope is returned when the host is outside every allowed domain
	OutOfScope
	// DisallowedExtension is returned for binary, document and media paths
	DisallowedExtension
	// TrapPattern is returned for calendar, login, upload and similar crawler traps
	TrapPattern
	// RobotsDisallowed is returned when the host's robots.txt forbids the path
	RobotsDisallowed
)

func (r Reason) String() string {
	switch r {
	case MalformedURL:
		return "malformed_url"
	case SchemeNotAllowed:
		return "scheme_not_allowed"
	case OutOfScope:
		return "out_of_scope"
	case DisallowedExtension:
		return "disallowed_extension"
	case TrapPattern:
		return "trap_pattern"
	case RobotsDisallowed:
		return "robots_disallowed"
	default:
		return "unknown"
	}
}

// RejectError reports a URL that cannot enter the frontier.
type RejectError struct {
	Raw    string
	Reason Reason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rejected %q: %s", e.Raw, e.Reason)
}

// Reject builds a *RejectError.
func Reject(raw string, reason Reason) error {
	return &RejectError{Raw: raw, Reason: reason}
}

// CanonicalURL is the normalized identity of a page.
// Two URLs refer to the same page iff all fields are equal.
type CanonicalURL struct {
	Scheme string // http or https, lowercase
	Host   string // lowercase, "www." stripped, default port removed
	Path   string // repeated slashes collapsed, never empty
	Params string // ";params" of the last path segment, without the semicolon
	Query  string // parameters sorted, fragment discarded
}

// String renders the canonical URL.
func (c CanonicalURL) String() string {
	var b strings.Builder
	b.WriteString(c.Scheme)
	b.WriteString("://")
	b.WriteString(c.Host)
	b.WriteString(c.Path)
	if c.Params != "" {
		b.WriteByte(';')
		b.WriteString(c.Params)
	}
	if c.Query != "" {
		b.WriteByte('?')
		b.WriteString(c.Query)
	}
	return b.String()
}

// Hostname returns the host without a port.
func (c CanonicalURL) Hostname() string {
	if i := strings.LastIndexByte(c.Host, ':'); i >= 0 && !strings.Contains(c.Host[i:], "]") {
		return c.Host[:i]
	}
	return c.Host
}

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Normalize computes the canonical form of an absolute http(s) URL without any scope checks.
// It is pure and idempotent: Normalize(Normalize(u).String()) == Normalize(u).
func Normalize(raw string) (CanonicalURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CanonicalURL{}, Reject(raw, MalformedURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return CanonicalURL{}, Reject(raw, MalformedURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return CanonicalURL{}, Reject(raw, MalformedURL)
	}
	if scheme != "http" && scheme != "https" {
		return CanonicalURL{}, Reject(raw, SchemeNotAllowed)
	}

	host := normalizeHost(u, scheme)
	if host == "" {
		return CanonicalURL{}, Reject(raw, MalformedURL)
	}

	p := u.EscapedPath()
	var params string
	if i := strings.LastIndexByte(p, ';'); i >= 0 && !strings.Contains(p[i:], "/") {
		params = p[i+1:]
		p = p[:i]
	}
	p = removeDotSegments(repeatedSlashes.ReplaceAllString(p, "/"))
	if p == "" {
		p = "/"
	}

	return CanonicalURL{
		Scheme: scheme,
		Host:   host,
		Path:   p,
		Params: params,
		Query:  sortQuery(u.RawQuery),
	}, nil
}

func normalizeHost(u *url.URL, scheme string) string {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for strings.HasPrefix(host, "www.") {
		host = host[len("www."):]
	}
	if host == "" {
		return ""
	}
	port := u.Port()
	if port == "" || (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return host
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

// removeDotSegments resolves "." and ".." segments. A path whose last segment is
// a dot segment, or that already ended in a slash, keeps a trailing slash.
func removeDotSegments(p string) string {
	segments := strings.Split(p, "/")
	dotted := false
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			dotted = true
			break
		}
	}
	if !dotted {
		return p
	}

	last := segments[len(segments)-1]
	cleaned := path.Clean("/" + p)
	if cleaned != "/" && (last == "" || last == "." || last == "..") {
		cleaned += "/"
	}
	return cleaned
}

// sortQuery orders the raw key=value pairs so that parameter order does not affect identity.
// Pairs keep their original encoding, which keeps the operation idempotent.
func sortQuery(raw string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	kept := pairs[:0]
	for _, p := range pairs {
		if p != "" {
			kept = append(kept, p)
		}
	}
	sort.Strings(kept)
	return strings.Join(kept, "&")
}

// Resolve turns an href found on base into an absolute URL string.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid href: %w", err)
	}
	return b.ResolveReference(ref).String(), nil
}
