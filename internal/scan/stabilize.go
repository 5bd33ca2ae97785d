package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Stabilization defaults.
const (
	DefaultStabilizeDelay      = 3 * time.Second
	DefaultStabilizeMaxRetries = 10
)

// Stabilize reruns Inner until two consecutive polls return the same number
// of resources. Every poll starts from the input context, so the result is
// the inner stage's output of the converged poll.
type Stabilize struct {
	Inner      Stage
	Delay      time.Duration
	MaxRetries int
	Logger     *zap.Logger
}

// Name implements Stage.
func (s *Stabilize) Name() string { return "stabilize(" + s.Inner.Name() + ")" }

// Execute implements Stage.
func (s *Stabilize) Execute(ctx context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultStabilizeMaxRetries
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	previous := -1
	for attempt := 1; attempt <= maxRetries; attempt++ {
		next, err := s.Inner.Execute(ctx, sc)
		if err != nil {
			return harvest.ScanContext{}, err
		}
		count := next.Len()
		if count == previous {
			logger.Debug("scan converged", zap.String("stage", s.Inner.Name()), zap.Int("count", count), zap.Int("polls", attempt))
			return next, nil
		}
		logger.Debug("scan not yet stable",
			zap.String("stage", s.Inner.Name()),
			zap.Int("previous", previous),
			zap.Int("count", count),
			zap.Int("attempt", attempt),
		)
		previous = count
		if attempt < maxRetries {
			if err := sleep(ctx, s.Delay); err != nil {
				return harvest.ScanContext{}, err
			}
		}
	}
	return harvest.ScanContext{}, fmt.Errorf("%w after %d retries", harvest.ErrStabilizationExhausted, maxRetries)
}
