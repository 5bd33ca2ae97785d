package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// DenylistScope selects where eval-only denylists are enforced.
type DenylistScope string

const (
	// DenylistPipeline applies a denylist only inside pipelines with a Validate stage.
	DenylistPipeline DenylistScope = "pipeline"
	// DenylistGlobal also filters the merged result by every pipeline's denylist.
	DenylistGlobal DenylistScope = "global"
)

// Coordinator runs the volatile pipeline and the static pipelines and merges
// their output into one ordered, duplicate-free resource list.
type Coordinator struct {
	volatile Pipeline
	static   []Pipeline
	scope    DenylistScope
	logger   *zap.Logger
}

// NewCoordinator wires a coordinator. The static pipelines are skipped in
// re-scan mode.
func NewCoordinator(volatile Pipeline, static []Pipeline, scope DenylistScope, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scope == "" {
		scope = DenylistPipeline
	}
	return &Coordinator{
		volatile: volatile,
		static:   append([]Pipeline(nil), static...),
		scope:    scope,
		logger:   logger,
	}
}

// Scan implements harvest.Scanner.
func (c *Coordinator) Scan(ctx context.Context, includeStatic bool) ([]string, error) {
	start := time.Now()
	volatile, err := c.volatile.Run(ctx)
	if err != nil {
		return nil, err
	}
	results := []harvest.ScanContext{volatile}

	if includeStatic && len(c.static) > 0 {
		staticResults := make([]harvest.ScanContext, len(c.static))
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range c.static {
			g.Go(func() error {
				sc, err := p.Run(gctx)
				if err != nil {
					return err
				}
				staticResults[i] = sc
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("static scan: %w", err)
		}
		results = append(results, staticResults...)
	}

	merged := harvest.NewScanContext()
	for _, sc := range results {
		merged = merged.MergeURLs(sc.URLs()).WithDenylist(sc.Denylist())
	}
	merged, _ = Dedup{}.Execute(ctx, merged)
	if c.scope == DenylistGlobal {
		merged, _ = Validate{ApplyDenylist: true}.Execute(ctx, merged)
	}

	urls := merged.URLs()
	if len(urls) == 0 {
		return nil, harvest.ErrEmptyResult
	}
	c.logger.Info("scan complete",
		zap.Int("resources", len(urls)),
		zap.Int("volatile", volatile.Len()),
		zap.Bool("include_static", includeStatic),
		zap.Duration("dur", time.Since(start)),
	)
	return urls, nil
}
