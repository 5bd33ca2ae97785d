package scan

import (
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Sources are the collaborators the standard pipelines read from.
type Sources struct {
	Probe    harvest.RegistryProbe
	Document harvest.DocumentSource
	Fetcher  harvest.Fetcher
}

// Options tune the standard pipelines.
type Options struct {
	Origin              string
	ManifestURL         string
	Filter              harvest.ResourceFilter
	FixedResources      []string
	StabilizeDelay      time.Duration
	StabilizeMaxRetries int
	ProbeInterval       time.Duration
	ProbeAttempts       int
	DenylistScope       DenylistScope
	Logger              *zap.Logger
}

// NewStandardCoordinator assembles the four discovery pipelines:
//
//	volatile: registry under stabilization, dedup
//	static:   manifest, dedup
//	          inline, dedup, validate with denylist
//	          fixed set
func NewStandardCoordinator(src Sources, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fixed := opts.FixedResources
	if fixed == nil {
		fixed = DefaultFixedResources
	}

	volatile := Pipeline{
		Name:   "registry",
		Logger: logger,
		Stages: []Stage{
			&Stabilize{
				Inner: &RegistryStrategy{
					Probe:         src.Probe,
					Origin:        opts.Origin,
					Filter:        opts.Filter,
					ProbeInterval: opts.ProbeInterval,
					ProbeAttempts: opts.ProbeAttempts,
					Logger:        logger,
				},
				Delay:      opts.StabilizeDelay,
				MaxRetries: opts.StabilizeMaxRetries,
				Logger:     logger,
			},
			Dedup{},
		},
	}
	static := []Pipeline{
		{
			Name:   "manifest",
			Logger: logger,
			Stages: []Stage{
				&ManifestStrategy{Fetcher: src.Fetcher, URL: opts.ManifestURL, Origin: opts.Origin},
				Dedup{},
			},
		},
		{
			Name:   "inline",
			Logger: logger,
			Stages: []Stage{
				&InlineStrategy{Document: src.Document, Origin: opts.Origin},
				Dedup{},
				Validate{Filter: opts.Filter, ApplyDenylist: true},
			},
		},
		{
			Name:   "fixed",
			Logger: logger,
			Stages: []Stage{&FixedStrategy{Resources: fixed, Origin: opts.Origin}},
		},
	}
	return NewCoordinator(volatile, static, opts.DenylistScope, logger)
}
