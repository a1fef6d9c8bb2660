// Package urlutil resolves link references and reduces URLs to canonical
// comparison keys.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolve resolves a declared link reference against the page URL it was read from.
func Resolve(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("urlutil: empty reference")
	}
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("urlutil: parse base %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("urlutil: parse reference %q: %w", ref, err)
	}
	resolved := baseURL.ResolveReference(refURL)
	if !resolved.IsAbs() {
		return "", fmt.Errorf("urlutil: reference %q does not resolve to an absolute URL against %q", ref, base)
	}
	return resolved.String(), nil
}

// IsHTTP reports whether raw is an absolute http or https URL.
func IsHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("urlutil: parse %q: %w", raw, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("urlutil: %q is not absolute", raw)
	}
	return u, nil
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPort(scheme) {
		host += ":" + port
	}
	return scheme + "://" + host
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func escapedPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}
