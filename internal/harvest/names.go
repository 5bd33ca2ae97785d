package harvest

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	defaultEntryName   = "resource.js"
	queryTagLength     = 16
	displayNameMaxSize = 40
)

// WellKnownNames maps path suffixes to fixed archive names.
type WellKnownNames map[string]string

// DefaultWellKnownNames covers the worker bootstrap paths no other source names.
func DefaultWellKnownNames() WellKnownNames {
	return WellKnownNames{
		"/pdf-worker/":  "pdf-worker.js",
		"/init_script/": "init-script.js",
	}
}

func (w WellKnownNames) lookup(p string) (string, bool) {
	for suffix, name := range w {
		if strings.HasSuffix(p, suffix) {
			return name, true
		}
	}
	return "", false
}

// BaseName derives the archive base name for resource before collision
// handling. Well-known suffixes win; otherwise the last path segment is used,
// tagged with the first characters of the query so that cache-busted variants
// of the same file stay distinct.
func (w WellKnownNames) BaseName(resource string) string {
	u, err := url.Parse(resource)
	if err != nil {
		return defaultEntryName
	}
	if name, ok := w.lookup(u.Path); ok {
		return name
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || strings.HasSuffix(u.Path, "/") {
		name = defaultEntryName
	}
	if tag := sanitizeTag(u.RawQuery); tag != "" {
		stem, ext := splitExt(name)
		name = stem + "-" + tag + ext
	}
	return name
}

// DisplayName is the short label shown in progress messages.
func (w WellKnownNames) DisplayName(resource string) string {
	u, err := url.Parse(resource)
	if err != nil {
		return TruncateName(resource, displayNameMaxSize)
	}
	if name, ok := w.lookup(u.Path); ok {
		return name
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "unknown"
	}
	return TruncateName(name, displayNameMaxSize)
}

// NameRegistry hands out unique archive names. The first use of a base name
// keeps it; later uses get _2, _3, ... before the extension. It is not safe
// for concurrent use; callers assign names before fanning out.
type NameRegistry struct {
	known WellKnownNames
	seen  map[string]int
	taken map[string]struct{}
}

// NewNameRegistry returns an empty registry using known for fixed names.
func NewNameRegistry(known WellKnownNames) *NameRegistry {
	return &NameRegistry{
		known: known,
		seen:  make(map[string]int),
		taken: make(map[string]struct{}),
	}
}

// Assign returns the unique archive name for resource.
func (r *NameRegistry) Assign(resource string) string {
	base := r.known.BaseName(resource)
	for {
		r.seen[base]++
		name := base
		if n := r.seen[base]; n > 1 {
			stem, ext := splitExt(base)
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		if _, clash := r.taken[name]; clash {
			continue
		}
		r.taken[name] = struct{}{}
		return name
	}
}

// TruncateName shortens name to max characters by eliding its middle while
// keeping the extension visible. Lengths count runes, so multi-byte names
// are never cut mid-character.
func TruncateName(name string, max int) string {
	if utf8.RuneCountInString(name) <= max {
		return name
	}
	stem, ext := splitExt(name)
	runes := []rune(stem)
	avail := max - utf8.RuneCountInString(ext) - 3
	if avail <= 0 {
		return "..." + ext
	}
	half := avail / 2
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:]) + ext
}

func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

func sanitizeTag(query string) string {
	if query == "" {
		return ""
	}
	if len(query) > queryTagLength {
		query = query[:queryTagLength]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.', r == '=':
			return r
		default:
			return '_'
		}
	}, query)
}
