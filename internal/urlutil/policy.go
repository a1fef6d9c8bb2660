package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

type policyKind int

const (
	kindOriginPath policyKind = iota
	kindOriginPathQuery
	kindSelectedParams
	kindExact
)

// Policy maps a URL to a canonical key. Two URLs are considered the same
// destination under a policy when their keys are equal.
//
// The zero value is OriginPath.
type Policy struct {
	kind   policyKind
	params []string
}

// OriginPath keys on scheme, host and path. Query and fragment are dropped.
func OriginPath() Policy { return Policy{kind: kindOriginPath} }

// OriginPathQuery keys on scheme, host, path and the raw query as written.
func OriginPathQuery() Policy { return Policy{kind: kindOriginPathQuery} }

// OriginPathSelectedParams keys on scheme, host, path and only the named query
// parameters, serialized in the order the names are given.
func OriginPathSelectedParams(names ...string) Policy {
	params := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		params = append(params, n)
	}
	return Policy{kind: kindSelectedParams, params: params}
}

// Exact keys on the whole URL. Beyond scheme case and a trailing slash on the
// path, it applies the same origin normalization as the other policies: the
// host is lower-cased and a default port is dropped. Path and fragment are
// compared in their canonical escaped form, so "%7E" and "~" are equal.
func Exact() Policy { return Policy{kind: kindExact} }

// String returns the policy in the form accepted by ParsePolicy.
func (p Policy) String() string {
	switch p.kind {
	case kindOriginPathQuery:
		return "origin_path_query"
	case kindSelectedParams:
		return "params:" + strings.Join(p.params, ",")
	case kindExact:
		return "exact"
	default:
		return "origin_path"
	}
}

// ParsePolicy parses "exact", "origin_path", "origin_path_query" or
// "params:a,b". An empty string yields OriginPath.
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "origin_path":
		return OriginPath(), nil
	case s == "origin_path_query":
		return OriginPathQuery(), nil
	case s == "exact":
		return Exact(), nil
	case strings.HasPrefix(s, "params:"):
		names := strings.Split(strings.TrimPrefix(s, "params:"), ",")
		p := OriginPathSelectedParams(names...)
		if len(p.params) == 0 {
			return Policy{}, fmt.Errorf("urlutil: policy %q names no parameters", s)
		}
		return p, nil
	default:
		return Policy{}, fmt.Errorf("urlutil: unknown comparison policy %q", s)
	}
}

// Key returns the canonical key of raw under the policy.
func (p Policy) Key(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}
	base := origin(u) + escapedPath(u)

	switch p.kind {
	case kindOriginPathQuery:
		if u.RawQuery == "" {
			return base, nil
		}
		return base + "?" + u.RawQuery, nil

	case kindSelectedParams:
		// ParseQuery keeps the values it could decode even when it reports an error.
		values, _ := url.ParseQuery(u.RawQuery)
		var parts []string
		for _, name := range p.params {
			for _, v := range values[name] {
				parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
			}
		}
		if len(parts) == 0 {
			return base, nil
		}
		return base + "?" + strings.Join(parts, "&"), nil

	case kindExact:
		path := escapedPath(u)
		if len(path) > 1 {
			path = strings.TrimRight(path, "/")
			if path == "" {
				path = "/"
			}
		}
		key := origin(u) + path
		if u.RawQuery != "" || u.ForceQuery {
			key += "?" + u.RawQuery
		}
		if u.Fragment != "" {
			key += "#" + u.EscapedFragment()
		}
		return key, nil

	default:
		return base, nil
	}
}

// KeyOrRaw returns the policy key of raw, or raw itself when it cannot be keyed.
// Useful for diagnostics where the actual URL may be about:blank or similar.
func (p Policy) KeyOrRaw(raw string) string {
	key, err := p.Key(raw)
	if err != nil {
		return raw
	}
	return key
}
