package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeResource turns a raw reference into an absolute resource URL.
// Escaped separators are unescaped, site-relative and scheme-relative forms
// are resolved against origin, scheme and host are lowercased, and the
// fragment is dropped. Path and query are preserved byte for byte, so
// normalizing an already normalized URL returns it unchanged.
func NormalizeResource(raw, origin string) (string, error) {
	ref := strings.TrimSpace(strings.ReplaceAll(raw, `\/`, "/"))
	if ref == "" {
		return "", fmt.Errorf("empty resource reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse resource %q: %w", raw, err)
	}
	if !u.IsAbs() {
		base, err := url.Parse(origin)
		if err != nil || !base.IsAbs() {
			return "", fmt.Errorf("relative resource %q needs an absolute origin, got %q", raw, origin)
		}
		u = base.ResolveReference(u)
	}
	if u.Host == "" {
		return "", fmt.Errorf("resource %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// ResourceFilter accepts resources served from Prefix whose path ends in Suffix.
type ResourceFilter struct {
	Prefix string
	Suffix string
}

// Match reports whether resource passes the filter. The suffix is checked
// against the path portion only, so cache-busting queries are allowed.
func (f ResourceFilter) Match(resource string) bool {
	if f.Prefix != "" && !strings.HasPrefix(resource, f.Prefix) {
		return false
	}
	if f.Suffix == "" {
		return true
	}
	return strings.HasSuffix(pathPart(resource), f.Suffix)
}

func pathPart(resource string) string {
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		return resource[:i]
	}
	return resource
}
