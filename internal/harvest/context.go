package harvest

// MetaDenylist is the metadata key holding URLs flagged as eval-only.
const MetaDenylist = "denylist"

// ScanContext is the value threaded through discovery stages. It is never
// mutated: every With/Merge call returns a new context and accessors return
// copies, so stages can be reordered and tested as pure functions.
type ScanContext struct {
	urls []string
	meta map[string]any
}

// NewScanContext returns a context seeded with urls.
func NewScanContext(urls ...string) ScanContext {
	return ScanContext{urls: cloneStrings(urls)}
}

// URLs returns a copy of the accumulated resources in order.
func (c ScanContext) URLs() []string {
	return cloneStrings(c.urls)
}

// Len returns the number of accumulated resources, duplicates included.
func (c ScanContext) Len() int {
	return len(c.urls)
}

// WithURLs returns a context whose resources are replaced by urls.
func (c ScanContext) WithURLs(urls []string) ScanContext {
	return ScanContext{urls: cloneStrings(urls), meta: c.meta}
}

// MergeURLs returns a context with urls appended after the existing resources.
func (c ScanContext) MergeURLs(urls []string) ScanContext {
	merged := make([]string, 0, len(c.urls)+len(urls))
	merged = append(merged, c.urls...)
	merged = append(merged, urls...)
	return ScanContext{urls: merged, meta: c.meta}
}

// Metadata looks up a metadata value.
func (c ScanContext) Metadata(key string) (any, bool) {
	v, ok := c.meta[key]
	return v, ok
}

// WithMetadata returns a context with key set to value.
func (c ScanContext) WithMetadata(key string, value any) ScanContext {
	meta := make(map[string]any, len(c.meta)+1)
	for k, v := range c.meta {
		meta[k] = v
	}
	meta[key] = value
	return ScanContext{urls: c.urls, meta: meta}
}

// Denylist returns the URLs flagged for exclusion so far.
func (c ScanContext) Denylist() []string {
	v, ok := c.meta[MetaDenylist]
	if !ok {
		return nil
	}
	list, _ := v.([]string)
	return cloneStrings(list)
}

// WithDenylist returns a context whose denylist is the union of the existing
// entries and urls, in first-seen order.
func (c ScanContext) WithDenylist(urls []string) ScanContext {
	return c.WithMetadata(MetaDenylist, Unique(append(c.Denylist(), urls...)))
}

// Unique returns urls without repeats, keeping first-seen order.
func Unique(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
