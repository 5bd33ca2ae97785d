package scan

import (
	"context"
	"fmt"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// DefaultFixedResources are bootstrap scripts served from synthetic paths
// that never appear in the registry, manifest, or inline data.
var DefaultFixedResources = []string{
	"https://web.whatsapp.com/pdf-worker/",
	"https://web.whatsapp.com/init_script/",
}

// FixedStrategy merges a configured list of always-present resources.
// Entries may be relative to Origin and are normalized like every other
// discovered resource.
type FixedStrategy struct {
	Resources []string
	Origin    string
}

// Name implements Stage.
func (s *FixedStrategy) Name() string { return "fixed-set" }

// Execute implements Stage.
func (s *FixedStrategy) Execute(_ context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	resources := make([]string, 0, len(s.Resources))
	for _, raw := range s.Resources {
		resource, err := harvest.NormalizeResource(raw, s.Origin)
		if err != nil {
			return sc, fmt.Errorf("fixed resource: %w", err)
		}
		resources = append(resources, resource)
	}
	return sc.MergeURLs(resources), nil
}
