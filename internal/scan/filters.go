package scan

import (
	"context"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Dedup drops repeated resources, keeping first-seen order.
type Dedup struct{}

// Name implements Stage.
func (Dedup) Name() string { return "dedup" }

// Execute implements Stage.
func (Dedup) Execute(_ context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	return sc.WithURLs(harvest.Unique(sc.URLs())), nil
}

// Validate re-applies the resource filter and, when ApplyDenylist is set,
// removes anything present in the context denylist.
type Validate struct {
	Filter        harvest.ResourceFilter
	ApplyDenylist bool
}

// Name implements Stage.
func (v Validate) Name() string { return "validate" }

// Execute implements Stage.
func (v Validate) Execute(_ context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	var denied map[string]struct{}
	if v.ApplyDenylist {
		denied = toSet(sc.Denylist())
	}
	urls := sc.URLs()
	kept := urls[:0]
	for _, u := range urls {
		if !v.Filter.Match(u) {
			continue
		}
		if _, bad := denied[u]; bad {
			continue
		}
		kept = append(kept, u)
	}
	return sc.WithURLs(kept), nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
