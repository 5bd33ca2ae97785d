package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Stage transforms a scan context into a new one.
type Stage interface {
	Name() string
	Execute(ctx context.Context, sc harvest.ScanContext) (harvest.ScanContext, error)
}

// Pipeline runs its stages strictly in sequence starting from an empty context.
type Pipeline struct {
	Name   string
	Stages []Stage
	Logger *zap.Logger
}

// Run executes every stage and returns the final context.
func (p Pipeline) Run(ctx context.Context) (harvest.ScanContext, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := harvest.NewScanContext()
	for _, stage := range p.Stages {
		start := time.Now()
		next, err := stage.Execute(ctx, sc)
		if err != nil {
			return harvest.ScanContext{}, fmt.Errorf("pipeline %s: stage %s: %w", p.Name, stage.Name(), err)
		}
		logger.Debug("scan stage finished",
			zap.String("pipeline", p.Name),
			zap.String("stage", stage.Name()),
			zap.Int("before", sc.Len()),
			zap.Int("after", next.Len()),
			zap.Duration("dur", time.Since(start)),
		)
		sc = next
	}
	return sc, nil
}
