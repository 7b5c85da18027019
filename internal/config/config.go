// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. It is
// constructed once at startup and passed into components; nothing reads
// ambient global state.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Harvest   HarvestConfig             `mapstructure:"harvest"`
	Fetch     FetchConfig               `mapstructure:"fetch"`
	Headless  HeadlessConfig            `mapstructure:"headless"`
	Gates     GatesConfig               `mapstructure:"gates"`
	Storage   StorageConfig             `mapstructure:"storage"`
	DB        DBConfig                  `mapstructure:"db"`
	PubSub    PubSubConfig              `mapstructure:"pubsub"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Endpoints map[string]EndpointConfig `mapstructure:"endpoints"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HarvestConfig governs discovery and extraction behavior for one run.
type HarvestConfig struct {
	RootURLs         []string `mapstructure:"root_urls"`
	MaxConcurrency   int      `mapstructure:"max_concurrency"`
	MaxInFlight      int      `mapstructure:"max_in_flight"`
	MaxCrawlDepth    int      `mapstructure:"max_crawl_depth"`
	MaxPagesPerSeed  int      `mapstructure:"max_pages_per_seed"`
	PoliteDelayMinMs int      `mapstructure:"polite_delay_min_ms"`
	PoliteDelayMaxMs int      `mapstructure:"polite_delay_max_ms"`
	RequestsPerSec   float64  `mapstructure:"requests_per_sec"`
	EdgeRetention    int      `mapstructure:"edge_retention_runs"`
	UserAgent        string   `mapstructure:"user_agent"`
}

// FetchConfig configures fetch timeout and retry behavior.
type FetchConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the rendering fetcher.
type HeadlessConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxParallel    int  `mapstructure:"max_parallel"`
	NavTimeoutSec  int  `mapstructure:"nav_timeout_seconds"`
	BodySampleCapB int  `mapstructure:"body_sample_cap_bytes"`
}

// GatesConfig holds the mandatory run-level validation thresholds.
// CoverageThresholds maps variant name to the minimum record count expected
// from a complete harvest.
type GatesConfig struct {
	CoverageThresholds map[string]int `mapstructure:"coverage_thresholds"`
}

// StorageConfig selects the raw-page archive backend.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"` // gcs, local or memory
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"` // postgres or memory
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run-summary publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// EndpointConfig is one endpoint-registry entry: where a component's listing
// lives, which URLs belong to it, and whether it needs JavaScript rendering.
type EndpointConfig struct {
	SeedURL       string `mapstructure:"seed_url"`
	URLPattern    string `mapstructure:"url_pattern"`
	TransportHint string `mapstructure:"transport_hint"` // dom or structured
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("harvest.max_concurrency", 8)
	v.SetDefault("harvest.max_in_flight", 12)
	v.SetDefault("harvest.max_crawl_depth", 3)
	v.SetDefault("harvest.max_pages_per_seed", 50)
	v.SetDefault("harvest.polite_delay_min_ms", 250)
	v.SetDefault("harvest.polite_delay_max_ms", 900)
	v.SetDefault("harvest.requests_per_sec", 2.0)
	v.SetDefault("harvest.edge_retention_runs", 3)
	v.SetDefault("harvest.user_agent", "renec-harvester/1.0 (+https://github.com/madfam-io/renec-harvester-sub000)")
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.body_sample_cap_bytes", 256*1024)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Harvest.MaxConcurrency <= 0 {
		return fmt.Errorf("harvest.max_concurrency must be > 0")
	}
	if c.Harvest.MaxInFlight < c.Harvest.MaxConcurrency {
		return fmt.Errorf("harvest.max_in_flight must be >= harvest.max_concurrency")
	}
	if c.Harvest.PoliteDelayMaxMs < c.Harvest.PoliteDelayMinMs {
		return fmt.Errorf("harvest.polite_delay_max_ms must be >= polite_delay_min_ms")
	}
	if c.Harvest.EdgeRetention <= 0 {
		return fmt.Errorf("harvest.edge_retention_runs must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	for name, ep := range c.Endpoints {
		if ep.SeedURL == "" {
			return fmt.Errorf("endpoints.%s.seed_url is required", name)
		}
		if ep.TransportHint != "" && ep.TransportHint != "dom" && ep.TransportHint != "structured" {
			return fmt.Errorf("endpoints.%s.transport_hint must be dom or structured", name)
		}
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
