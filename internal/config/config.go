// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/logging"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Format   FormatConfig   `mapstructure:"format"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Progress ProgressConfig `mapstructure:"progress"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  logging.Config `mapstructure:"logging"`
}

// AppConfig identifies the application being harvested.
type AppConfig struct {
	URL         string `mapstructure:"url"`
	Origin      string `mapstructure:"origin"`
	ManifestURL string `mapstructure:"manifest_url"`
}

// ScanConfig tunes discovery.
type ScanConfig struct {
	Stabilization  StabilizationConfig `mapstructure:"stabilization"`
	ProbeInterval  time.Duration       `mapstructure:"probe_interval"`
	ProbeAttempts  int                 `mapstructure:"probe_attempts"`
	DenylistScope  string              `mapstructure:"denylist_scope"`
	FilterPrefix   string              `mapstructure:"filter_prefix"`
	FilterSuffix   string              `mapstructure:"filter_suffix"`
	FixedResources []string            `mapstructure:"fixed_resources"`
}

// StabilizationConfig bounds the registry polling loop.
type StabilizationConfig struct {
	Delay      time.Duration `mapstructure:"delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// FetchConfig configures the resource fetcher.
type FetchConfig struct {
	UserAgent    string            `mapstructure:"user_agent"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxBodyBytes int               `mapstructure:"max_body_bytes"`
	Headers      map[string]string `mapstructure:"headers"`
	RateLimitRPS float64           `mapstructure:"rate_limit_rps"`
	RateBurst    int               `mapstructure:"rate_burst"`
}

// PoolConfig bounds concurrent resource processing.
type PoolConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// WorkersConfig sizes the formatting worker pool.
type WorkersConfig struct {
	PoolSize   int           `mapstructure:"pool_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// FormatConfig controls source reformatting.
type FormatConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	IndentSize int  `mapstructure:"indent_size"`
	UseTabs    bool `mapstructure:"use_tabs"`
	// FallbackOnError keeps the raw source when formatting fails.
	FallbackOnError bool `mapstructure:"fallback_on_error"`
}

// ArchiveConfig names the artifact.
type ArchiveConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// StorageConfig selects the artifact destination: "local", "gcs" or "memory".
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`

	// CacheControl is applied to GCS objects.
	CacheControl string `mapstructure:"cache_control"`
}

// HeadlessConfig configures the Chrome session.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	UserDataDir       string        `mapstructure:"user_data_dir"`
	ExecPath          string        `mapstructure:"exec_path"`
	RegistryModule    string        `mapstructure:"registry_module"`
	Accessor          string        `mapstructure:"accessor"`
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	StatusKeep    int           `mapstructure:"status_keep"`
}

// DBConfig controls access to the run history database. Empty DSN disables it.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for completion notifications. Empty fields disable them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.url", "https://web.whatsapp.com/")
	v.SetDefault("scan.stabilization.delay", 3*time.Second)
	v.SetDefault("scan.stabilization.max_retries", 10)
	v.SetDefault("scan.probe_interval", 100*time.Millisecond)
	v.SetDefault("scan.probe_attempts", 1000)
	v.SetDefault("scan.denylist_scope", "pipeline")
	v.SetDefault("scan.filter_prefix", "https://static.whatsapp.net/rsrc.php")
	v.SetDefault("scan.filter_suffix", ".js")
	v.SetDefault("fetch.user_agent", "spa-harvester/1.0")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.rate_burst", 1)
	v.SetDefault("pool.concurrency", 6)
	v.SetDefault("workers.pool_size", 3)
	v.SetDefault("workers.job_timeout", 30*time.Second)
	v.SetDefault("format.enabled", false)
	v.SetDefault("format.indent_size", 2)
	v.SetDefault("format.use_tabs", false)
	v.SetDefault("format.fallback_on_error", true)
	v.SetDefault("archive.prefix", "whatsapp-resources")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./out")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.navigation_timeout", 45*time.Second)
	v.SetDefault("headless.registry_module", "Bootloader")
	v.SetDefault("headless.accessor", "getURLToHashMap")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_size", 64)
	v.SetDefault("progress.flush_interval", 200*time.Millisecond)
	v.SetDefault("progress.status_keep", 20)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("logging.development", true)
}

// fillDerived computes values that default from other keys.
func (c *Config) fillDerived() {
	if c.App.Origin == "" {
		if u, err := url.Parse(c.App.URL); err == nil && u.Host != "" {
			c.App.Origin = u.Scheme + "://" + u.Host
		}
	}
	if c.App.ManifestURL == "" && c.App.Origin != "" {
		c.App.ManifestURL = strings.TrimSuffix(c.App.Origin, "/") + "/sw.js"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.App.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("app.url must be an absolute URL")
	}
	if c.Scan.Stabilization.MaxRetries <= 0 {
		return fmt.Errorf("scan.stabilization.max_retries must be > 0")
	}
	if c.Scan.Stabilization.Delay < 0 {
		return fmt.Errorf("scan.stabilization.delay must be >= 0")
	}
	switch c.Scan.DenylistScope {
	case "pipeline", "global":
	default:
		return fmt.Errorf("scan.denylist_scope must be pipeline or global")
	}
	if c.Pool.Concurrency <= 0 {
		return fmt.Errorf("pool.concurrency must be > 0")
	}
	if c.Workers.PoolSize <= 0 {
		return fmt.Errorf("workers.pool_size must be > 0")
	}
	if c.Workers.JobTimeout <= 0 {
		return fmt.Errorf("workers.job_timeout must be > 0")
	}
	if c.Format.IndentSize <= 0 && !c.Format.UseTabs {
		return fmt.Errorf("format.indent_size must be > 0 unless format.use_tabs is set")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be local, gcs, or memory")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FormatOptions converts the format section into engine options.
func (c Config) FormatOptions() harvest.FormatOptions {
	return harvest.FormatOptions{
		Enabled:    c.Format.Enabled,
		IndentSize: c.Format.IndentSize,
		UseTabs:    c.Format.UseTabs,
	}
}

// ResourceFilter returns the discovery filter.
func (c Config) ResourceFilter() harvest.ResourceFilter {
	return harvest.ResourceFilter{Prefix: c.Scan.FilterPrefix, Suffix: c.Scan.FilterSuffix}
}
