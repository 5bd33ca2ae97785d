package scan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

const (
	defaultProbeInterval = 100 * time.Millisecond
	defaultProbeAttempts = 1000
)

// RegistryStrategy reads the host page's loader registry. The registry is
// installed asynchronously, so it is probed on a fixed interval first.
type RegistryStrategy struct {
	Probe         harvest.RegistryProbe
	Origin        string
	Filter        harvest.ResourceFilter
	ProbeInterval time.Duration
	ProbeAttempts int
	Logger        *zap.Logger
}

// Name implements Stage.
func (s *RegistryStrategy) Name() string { return "loader-registry" }

// Execute implements Stage.
func (s *RegistryStrategy) Execute(ctx context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	interval := s.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	attempts := s.ProbeAttempts
	if attempts <= 0 {
		attempts = defaultProbeAttempts
	}
	registry, ok, err := Retry(ctx, attempts, interval, s.Probe.Probe)
	if err != nil {
		return sc, fmt.Errorf("probe loader registry: %w", err)
	}
	if !ok {
		return sc, fmt.Errorf("%w after %d attempts", harvest.ErrSourceUnavailable, attempts)
	}
	snapshot, err := registry.Snapshot(ctx)
	if err != nil {
		return sc, fmt.Errorf("snapshot loader registry: %w", err)
	}

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	found := make([]string, 0, len(keys))
	for _, raw := range keys {
		resource, err := harvest.NormalizeResource(raw, s.Origin)
		if err != nil {
			continue
		}
		if s.Filter.Match(resource) {
			found = append(found, resource)
		}
	}
	if s.Logger != nil {
		s.Logger.Debug("loader registry snapshot",
			zap.Int("entries", len(snapshot)),
			zap.Int("matched", len(found)),
		)
	}
	return sc.MergeURLs(found), nil
}
