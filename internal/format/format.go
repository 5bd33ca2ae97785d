// Package format reformats fetched JavaScript off the caller's goroutine by
// routing every job through the isolated worker pool.
package format

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Submitter is the slice of the worker pool the formatter needs.
type Submitter interface {
	Submit(ctx context.Context, input string, opts harvest.FormatOptions) (string, error)
}

// Formatter implements harvest.Formatter.
type Formatter struct {
	pool   Submitter
	logger *zap.Logger
}

// New returns a Formatter backed by pool.
func New(pool Submitter, logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{pool: pool, logger: logger}
}

// Format returns code unchanged when formatting is disabled.
func (f *Formatter) Format(ctx context.Context, code string, opts harvest.FormatOptions) (string, error) {
	if !opts.Enabled {
		return code, nil
	}
	start := time.Now()
	out, err := f.pool.Submit(ctx, code, opts)
	if err != nil {
		return "", fmt.Errorf("format: %w", err)
	}
	f.logger.Debug("formatted source",
		zap.Int("in_bytes", len(code)),
		zap.Int("out_bytes", len(out)),
		zap.Duration("dur", time.Since(start)),
	)
	return out, nil
}
