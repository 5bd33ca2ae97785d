// Package app wires the harvester's dependencies from configuration and
// exposes the process-level operations used by the CLI: a single harvest, a
// discovery-only scan, and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/api"
	"github.com/JakeFAU/spa-harvester/internal/clock/system"
	"github.com/JakeFAU/spa-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/spa-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/spa-harvester/internal/format"
	"github.com/JakeFAU/spa-harvester/internal/format/esbuild"
	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/hash/sha256"
	"github.com/JakeFAU/spa-harvester/internal/headless"
	idgen "github.com/JakeFAU/spa-harvester/internal/id/uuid"
	"github.com/JakeFAU/spa-harvester/internal/logging"
	"github.com/JakeFAU/spa-harvester/internal/metrics"
	"github.com/JakeFAU/spa-harvester/internal/orchestrator"
	"github.com/JakeFAU/spa-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/spa-harvester/internal/progress"
	progresssinks "github.com/JakeFAU/spa-harvester/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/spa-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/spa-harvester/internal/scan"
	gcsstorage "github.com/JakeFAU/spa-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/spa-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/spa-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/spa-harvester/internal/storage/postgres"
	"github.com/JakeFAU/spa-harvester/internal/store"
	"github.com/JakeFAU/spa-harvester/internal/workerpool"
)

// ErrBrowserDisabled is returned by operations that need the loaded
// application page when headless.enabled is false.
var ErrBrowserDisabled = errors.New("headless browser is disabled")

// Browser is a loaded application tab used by one scan.
type Browser interface {
	harvest.RegistryProbe
	harvest.DocumentSource
	Close()
}

// BrowserOpener launches a Browser for the configured application.
type BrowserOpener func(ctx context.Context, cfg headless.Config) (Browser, error)

// Options override process-level collaborators. Zero values build the real
// implementation from config.
type Options struct {
	Logger      *zap.Logger
	Registerer  prometheus.Registerer
	OpenBrowser BrowserOpener
	BlobStore   harvest.BlobStore
	Publisher   progresssinks.Publisher
	Runs        store.RunRepository
	Clock       harvest.Clock
	// ResourceFetcher replaces the colly fetcher for both manifest and
	// resource downloads.
	ResourceFetcher harvest.Fetcher
}

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	clock       harvest.Clock
	openBrowser BrowserOpener

	manifestFetcher harvest.Fetcher
	resourceFetcher harvest.Fetcher
	limiter         harvest.RateLimiter
	workers         *workerpool.Pool
	formatter       harvest.Formatter
	blobs           harvest.BlobStore
	hasher          harvest.Hasher
	hub             *progress.Hub
	status          *progresssinks.StatusSink
	runs            store.RunRepository

	runStore     *pgstore.RunStore
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher

	baseCtx   context.Context
	runCtx    context.Context
	cancelRun context.CancelFunc
	mu        sync.Mutex
	active    uuid.UUID
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Build creates the application's dependencies. On failure everything built
// so far is released.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	app := &App{
		cfg:         cfg,
		logger:      logger,
		clock:       opts.Clock,
		openBrowser: opts.OpenBrowser,
		blobs:       opts.BlobStore,
		runs:        opts.Runs,
		hasher:      sha256.New(),
	}
	if app.clock == nil {
		app.clock = system.New()
	}
	if app.openBrowser == nil {
		app.openBrowser = openChrome
	}
	app.baseCtx = context.WithoutCancel(ctx)
	app.runCtx, app.cancelRun = context.WithCancel(app.baseCtx)

	logger.Info("building application dependencies",
		zap.String("app_url", cfg.App.URL),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("format", cfg.Format.Enabled),
	)

	steps := []func(context.Context, Options) error{
		app.setupFetchers,
		app.setupWorkers,
		app.setupStorage,
		app.setupDatabase,
		app.setupProgress,
	}
	for _, step := range steps {
		if err := step(ctx, opts); err != nil {
			app.cancelRun()
			app.closeInfrastructure(app.baseCtx)
			return nil, err
		}
	}
	return app, nil
}

func openChrome(ctx context.Context, cfg headless.Config) (Browser, error) {
	return headless.Open(ctx, cfg)
}

func (a *App) setupFetchers(_ context.Context, opts Options) error {
	a.limiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Fetch.RateLimitRPS,
		DefaultBurst: a.cfg.Fetch.RateBurst,
	})
	if opts.ResourceFetcher != nil {
		a.manifestFetcher = opts.ResourceFetcher
		a.resourceFetcher = opts.ResourceFetcher
		return nil
	}
	base := collyfetcher.Config{
		UserAgent:   a.cfg.Fetch.UserAgent,
		Timeout:     a.cfg.Fetch.Timeout,
		MaxBodySize: a.cfg.Fetch.MaxBodyBytes,
		Headers:     a.headers(),
	}
	// The orchestrator throttles resource fetches itself, so only the
	// manifest fetcher carries the limiter.
	manifest := base
	manifest.Limiter = a.limiter
	a.manifestFetcher = collyfetcher.New(manifest)
	a.resourceFetcher = collyfetcher.New(base)
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", a.cfg.Fetch.UserAgent),
		zap.Float64("rate_limit_rps", a.cfg.Fetch.RateLimitRPS),
	)
	return nil
}

func (a *App) setupWorkers(_ context.Context, _ Options) error {
	pool, err := workerpool.New(esbuild.Transform, workerpool.Config{
		Size:       a.cfg.Workers.PoolSize,
		JobTimeout: a.cfg.Workers.JobTimeout,
		IDs:        idgen.New(),
		Logger:     a.logger.Named("workerpool"),
		Observer:   metrics.ObserveWorkerJob,
	})
	if err != nil {
		return fmt.Errorf("worker pool init failed: %w", err)
	}
	a.workers = pool
	a.formatter = format.New(pool, a.logger.Named("format"))
	a.logger.Info("worker pool initialized",
		zap.Int("size", pool.Size()),
		zap.Duration("job_timeout", a.cfg.Workers.JobTimeout),
	)
	return nil
}

func (a *App) setupStorage(ctx context.Context, _ Options) error {
	if a.blobs != nil {
		return nil
	}
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend")
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket:       a.cfg.Storage.GCSBucket,
			Prefix:       a.cfg.Storage.Prefix,
			CacheControl: a.cfg.Storage.CacheControl,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case "local":
		a.logger.Info("using local storage backend")
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context, _ Options) error {
	if a.runs != nil {
		return nil
	}
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, run history disabled")
		return nil
	}
	runStore, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.runStore = runStore
	a.runs = runStore
	if a.cfg.DB.AutoMigrate {
		if err := runStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run store migrate failed: %w", err)
		}
	}
	a.logger.Info("run store initialized", zap.Bool("auto_migrate", a.cfg.DB.AutoMigrate))
	return nil
}

func (a *App) setupPublisher(ctx context.Context, opts Options) (progresssinks.Publisher, error) {
	if opts.Publisher != nil {
		return opts.Publisher, nil
	}
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, completion notifications disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupProgress(ctx context.Context, opts Options) error {
	promSink, err := progresssinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.status = progresssinks.NewStatusSink(a.cfg.Progress.StatusKeep)
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		a.status,
	}
	if a.runs != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")))
		a.logger.Debug("added progress store sink")
	}
	pub, err := a.setupPublisher(ctx, opts)
	if err != nil {
		return err
	}
	if pub != nil {
		sinkList = append(sinkList,
			progresssinks.NewNotifySink(pub, a.cfg.PubSub.TopicName, a.logger.Named("progress_notify")))
		a.logger.Debug("added progress notify sink")
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchSize,
		MaxBatchWait:   a.cfg.Progress.FlushInterval,
		BaseContext:    a.baseCtx,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) headers() http.Header {
	if len(a.cfg.Fetch.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(a.cfg.Fetch.Headers))
	for k, v := range a.cfg.Fetch.Headers {
		h.Set(k, v)
	}
	return h
}

func (a *App) headlessConfig() headless.Config {
	return headless.Config{
		AppURL:            a.cfg.App.URL,
		UserAgent:         a.cfg.Fetch.UserAgent,
		Headers:           a.headers(),
		NavigationTimeout: a.cfg.Headless.NavigationTimeout,
		Headless:          true,
		UserDataDir:       a.cfg.Headless.UserDataDir,
		ExecPath:          a.cfg.Headless.ExecPath,
		RegistryModule:    a.cfg.Headless.RegistryModule,
		Accessor:          a.cfg.Headless.Accessor,
		Logger:            a.logger.Named("headless"),
	}
}

func (a *App) open(ctx context.Context) (Browser, error) {
	if !a.cfg.Headless.Enabled {
		return nil, ErrBrowserDisabled
	}
	browser, err := a.openBrowser(ctx, a.headlessConfig())
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	return browser, nil
}

func (a *App) newScanner(browser Browser) *scan.Coordinator {
	return scan.NewStandardCoordinator(
		scan.Sources{
			Probe:    browser,
			Document: browser,
			Fetcher:  a.manifestFetcher,
		},
		scan.Options{
			Origin:              a.cfg.App.Origin,
			ManifestURL:         a.cfg.App.ManifestURL,
			Filter:              a.cfg.ResourceFilter(),
			FixedResources:      a.cfg.Scan.FixedResources,
			StabilizeDelay:      a.cfg.Scan.Stabilization.Delay,
			StabilizeMaxRetries: a.cfg.Scan.Stabilization.MaxRetries,
			ProbeInterval:       a.cfg.Scan.ProbeInterval,
			ProbeAttempts:       a.cfg.Scan.ProbeAttempts,
			DenylistScope:       scan.DenylistScope(a.cfg.Scan.DenylistScope),
			Logger:              a.logger.Named("scan"),
		},
	)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Status returns the in-memory run status view.
func (a *App) Status() *progresssinks.StatusSink { return a.status }

// Scan runs discovery only. With rescan set, only the volatile registry
// source is consulted.
func (a *App) Scan(ctx context.Context, rescan bool) ([]string, error) {
	browser, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer browser.Close()
	urls, err := a.newScanner(browser).Scan(ctx, !rescan)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return urls, nil
}

// RunHarvest executes one harvest and blocks until it finishes.
func (a *App) RunHarvest(ctx context.Context) (orchestrator.Summary, error) {
	runID, err := idgen.New().NewRunID()
	if err != nil {
		return orchestrator.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	return a.runHarvest(ctx, runID)
}

func (a *App) runHarvest(ctx context.Context, runID uuid.UUID) (orchestrator.Summary, error) {
	reporter := progress.NewReporter(a.hub, runID, a.clock)
	logger := a.logger.With(zap.String("run_id", runID.String()))

	browser, err := a.open(ctx)
	if err != nil {
		reporter.Error(err.Error())
		return orchestrator.Summary{RunID: runID.String()}, err
	}
	defer browser.Close()

	var formatter harvest.Formatter
	if a.cfg.Format.Enabled {
		formatter = a.formatter
	}
	orch, err := orchestrator.New(orchestrator.Config{
		RunID:                    runID.String(),
		ArchivePrefix:            a.cfg.Archive.Prefix,
		Concurrency:              a.cfg.Pool.Concurrency,
		Format:                   a.cfg.FormatOptions(),
		FallbackOnTransformError: a.cfg.Format.FallbackOnError,
	}, orchestrator.Deps{
		Scanner:   a.newScanner(browser),
		Fetcher:   a.resourceFetcher,
		Formatter: formatter,
		Reporter:  reporter,
		Store:     a.blobs,
		Limiter:   a.limiter,
		Hasher:    a.hasher,
		Clock:     a.clock,
		Logger:    logger,
	})
	if err != nil {
		return orchestrator.Summary{RunID: runID.String()}, fmt.Errorf("orchestrator init failed: %w", err)
	}
	summary, err := orch.Run(ctx)
	if err != nil {
		logger.Error("harvest failed", zap.Error(err))
		return summary, err
	}
	logger.Info("harvest finished",
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Success),
		zap.Int("errors", summary.Errors),
		zap.String("artifact", summary.ArtifactURI),
	)
	return summary, nil
}

// StartRun launches a harvest in the background. Only one run may be active
// at a time; a second call returns api.ErrRunInProgress.
func (a *App) StartRun() (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != uuid.Nil {
		return uuid.Nil, api.ErrRunInProgress
	}
	if a.runCtx.Err() != nil {
		return uuid.Nil, errors.New("application is shutting down")
	}
	runID, err := idgen.New().NewRunID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	a.active = runID
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.mu.Lock()
			a.active = uuid.Nil
			a.mu.Unlock()
		}()
		_, _ = a.runHarvest(a.runCtx, runID)
	}()
	return runID, nil
}

// ActiveRun returns the ID of the background run, if any.
func (a *App) ActiveRun() (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, a.active != uuid.Nil
}

// Handler builds the HTTP API handler.
func (a *App) Handler() http.Handler {
	return api.NewServer(a, a.status, a.runs, a.cfg.Auth, a.logger.Named("api")).Handler()
}

// Serve runs the HTTP API until ctx is canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			a.logger.Error("http server error", zap.Error(serveErr))
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close cancels any background run, drains the progress hub, and releases
// clients. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.cancelRun()
		a.wg.Wait()
		a.closeInfrastructure(ctx)
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.workers != nil {
		a.workers.Terminate()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
}
