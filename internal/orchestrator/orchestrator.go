// Package orchestrator runs one harvest: discover resources, fetch and
// optionally reformat each one with bounded concurrency, pack the results into
// a ZIP archive, deliver it, and report progress throughout.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/archive"
	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/taskpool"
)

// DefaultArchivePrefix names archives <prefix>-YYYY-MM-DD.zip.
const DefaultArchivePrefix = "whatsapp-resources"

const (
	msgScanning = "Scanning for JavaScript resources..."
	msgArchive  = "Creating ZIP archive..."
)

// Config tunes a run.
type Config struct {
	RunID         string
	ArchivePrefix string
	Concurrency   int
	Format        harvest.FormatOptions
	// FallbackOnTransformError keeps the raw body when formatting fails.
	FallbackOnTransformError bool
	WellKnown                harvest.WellKnownNames
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ArchivePrefix:            DefaultArchivePrefix,
		Concurrency:              taskpool.DefaultConcurrency,
		Format:                   harvest.DefaultFormatOptions(),
		FallbackOnTransformError: true,
		WellKnown:                harvest.DefaultWellKnownNames(),
	}
}

// Deps are the collaborators of a run. Scanner, Fetcher and Reporter are
// required; the rest are optional.
type Deps struct {
	Scanner   harvest.Scanner
	Fetcher   harvest.Fetcher
	Formatter harvest.Formatter
	Reporter  harvest.Reporter
	// NewArchive returns a fresh builder; nil uses archive.NewBuilder.
	NewArchive func() harvest.ArchiveBuilder
	Store      harvest.BlobStore
	Limiter    harvest.RateLimiter
	Hasher     harvest.Hasher
	Clock      harvest.Clock
	Logger     *zap.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID          string
	Total          int
	Success        int
	Errors         int
	ArtifactName   string
	ArtifactURI    string
	ArtifactBytes  int
	ArtifactDigest string
}

// Orchestrator executes a single run.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Scanner == nil {
		return nil, errors.New("orchestrator: scanner is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("orchestrator: fetcher is required")
	}
	if deps.Reporter == nil {
		return nil, errors.New("orchestrator: reporter is required")
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = DefaultArchivePrefix
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = taskpool.DefaultConcurrency
	}
	if cfg.WellKnown == nil {
		cfg.WellKnown = harvest.DefaultWellKnownNames()
	}
	if deps.NewArchive == nil {
		deps.NewArchive = func() harvest.ArchiveBuilder { return archive.NewBuilder() }
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(zap.String("run_id", cfg.RunID)),
	}, nil
}

type entry struct {
	url     string
	name    string
	display string
}

// tally holds the shared counters; every report happens under mu so the
// numbers a reporter sees never go backwards.
type tally struct {
	mu      sync.Mutex
	rep     harvest.Reporter
	total   int
	done    int
	success int
	errors  int
}

func (t *tally) progress(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rep.Progress(t.done, t.total, t.success, t.errors, message)
}

func (t *tally) succeeded(e entry, formatted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.success++
	t.rep.FileStatus(e.url, e.name, harvest.PhaseDone)
	msg := "Done: " + harvest.TruncateName(e.name, 40)
	if formatted {
		msg += " ✓"
	}
	t.rep.Progress(t.done, t.total, t.success, t.errors, msg)
}

func (t *tally) failed(e entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.errors++
	t.rep.FileStatus(e.url, e.display, harvest.PhaseFailed)
	t.rep.Progress(t.done, t.total, t.success, t.errors, "Failed: "+e.display)
}

func (t *tally) counts() (int, int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.success, t.errors
}

// Run performs discovery, processing, archiving and delivery. Discovery,
// finalize and delivery failures are reported through Reporter.Error and
// returned; per-resource failures only count as errors.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	rep := o.deps.Reporter
	sum := Summary{RunID: o.cfg.RunID}
	start := o.deps.Clock.Now()

	rep.Progress(0, 0, 0, 0, msgScanning)
	urls, err := o.deps.Scanner.Scan(ctx, true)
	if err != nil {
		rep.Error(err.Error())
		return sum, fmt.Errorf("discover resources: %w", err)
	}

	entries := o.assignNames(urls)
	builder := o.deps.NewArchive()
	t := &tally{rep: rep, total: len(entries)}
	o.log.Info("harvest started", zap.Int("resources", len(entries)))

	tasks := make([]taskpool.Task[bool], len(entries))
	for i, e := range entries {
		rep.FileStatus(e.url, e.display, harvest.PhaseQueued)
		tasks[i] = taskpool.Task[bool]{
			Execute: func(ctx context.Context) (bool, error) {
				return o.process(ctx, e, t, builder)
			},
			OnSuccess: func(formatted bool) { t.succeeded(e, formatted) },
			OnError: func(err error) {
				o.log.Warn("resource failed", zap.String("url", e.url), zap.Error(err))
				t.failed(e)
			},
		}
	}
	taskpool.New[bool](o.cfg.Concurrency).Run(ctx, tasks)

	total, success, failures := t.counts()
	sum.Total, sum.Success, sum.Errors = total, success, failures
	rep.Progress(total, total, success, failures, msgArchive)

	data, err := builder.Finalize()
	if err != nil {
		rep.Error(err.Error())
		return sum, fmt.Errorf("finalize archive: %w", err)
	}
	sum.ArtifactName = archive.Name(o.cfg.ArchivePrefix, o.deps.Clock.Now())
	sum.ArtifactBytes = len(data)
	if o.deps.Hasher != nil {
		if sum.ArtifactDigest, err = o.deps.Hasher.Hash(data); err != nil {
			o.log.Warn("archive digest failed", zap.Error(err))
		}
	}
	if o.deps.Store != nil {
		uri, err := o.deps.Store.PutObject(ctx, sum.ArtifactName, "application/zip", bytes.NewReader(data))
		if err != nil {
			rep.Error(err.Error())
			return sum, fmt.Errorf("deliver archive: %w", err)
		}
		sum.ArtifactURI = uri
	}

	rep.Completion(total, success, failures)
	o.log.Info("harvest complete",
		zap.Int("total", total),
		zap.Int("success", success),
		zap.Int("errors", failures),
		zap.String("artifact", sum.ArtifactName),
		zap.String("uri", sum.ArtifactURI),
		zap.Int("bytes", sum.ArtifactBytes),
		zap.Duration("dur", o.deps.Clock.Now().Sub(start)),
	)
	return sum, nil
}

// assignNames fixes archive names in discovery order before any task runs.
func (o *Orchestrator) assignNames(urls []string) []entry {
	names := harvest.NewNameRegistry(o.cfg.WellKnown)
	entries := make([]entry, len(urls))
	for i, u := range urls {
		entries[i] = entry{
			url:     u,
			name:    names.Assign(u),
			display: o.cfg.WellKnown.DisplayName(u),
		}
	}
	return entries
}

// process fetches, optionally formats, and archives one resource. It reports
// whether the stored content was reformatted.
func (o *Orchestrator) process(ctx context.Context, e entry, t *tally, builder harvest.ArchiveBuilder) (bool, error) {
	rep := o.deps.Reporter
	rep.FileStatus(e.url, e.display, harvest.PhaseFetching)
	t.progress("Fetching: " + e.display)

	if o.deps.Limiter != nil {
		if err := o.deps.Limiter.Wait(ctx, e.url); err != nil {
			return false, err
		}
	}
	resp, err := o.deps.Fetcher.Fetch(ctx, e.url)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		if resp.URL == "" {
			resp.URL = e.url
		}
		return false, harvest.NewFetchError(resp)
	}

	content := resp.Body
	formatted := false
	if o.cfg.Format.Enabled && o.deps.Formatter != nil {
		rep.FileStatus(e.url, e.display, harvest.PhaseTransforming)
		t.progress("Formatting: " + e.display)
		out, err := o.deps.Formatter.Format(ctx, string(resp.Body), o.cfg.Format)
		switch {
		case err == nil:
			content = []byte(out)
			formatted = true
		case o.cfg.FallbackOnTransformError:
			o.log.Warn("format failed, keeping original source", zap.String("url", e.url), zap.Error(err))
		default:
			return false, fmt.Errorf("format: %w", err)
		}
	}

	if err := builder.AddEntry(e.name, content); err != nil {
		return false, fmt.Errorf("add %s to archive: %w", e.name, err)
	}
	return formatted, nil
}
