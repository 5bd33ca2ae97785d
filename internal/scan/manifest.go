package scan

import (
	"context"
	"fmt"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// ManifestStrategy fetches a well-known script (the service worker) and
// extracts the resources it references.
type ManifestStrategy struct {
	Fetcher harvest.Fetcher
	URL     string
	Origin  string
}

// Name implements Stage.
func (s *ManifestStrategy) Name() string { return "network-manifest" }

// Execute implements Stage.
func (s *ManifestStrategy) Execute(ctx context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	resp, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return sc, fmt.Errorf("fetch manifest %s: %w", s.URL, err)
	}
	if !resp.OK() {
		return sc, fmt.Errorf("fetch manifest %s: %w", s.URL, harvest.NewFetchError(resp))
	}
	return sc.MergeURLs(ExtractURLs(string(resp.Body), s.Origin)), nil
}
