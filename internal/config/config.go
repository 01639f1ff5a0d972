// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Source   SourceConfig   `mapstructure:"source"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP progress/metrics server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs pacing, concurrency and pagination behavior.
type CrawlerConfig struct {
	MaxCalls             int `mapstructure:"max_calls"`
	PeriodSeconds        int `mapstructure:"period_seconds"`
	MaxConcurrent        int `mapstructure:"max_concurrent"`
	BatchSize            int `mapstructure:"batch_size"`
	GlobalRecordCap      int `mapstructure:"global_record_cap"`
	RegionTimeoutSeconds int `mapstructure:"region_timeout_seconds"`
	PageSize             int `mapstructure:"page_size"`
	MaxPages             int `mapstructure:"max_pages"`
	PageRetries          int `mapstructure:"page_retries"`
}

// SourceConfig names the upstream directory endpoints.
type SourceConfig struct {
	ListingsURL   string `mapstructure:"listings_url"`
	RegionsURL    string `mapstructure:"regions_url"`
	LocalitiesURL string `mapstructure:"localities_url"`
	Include       string `mapstructure:"include"`
	Fetcher       string `mapstructure:"fetcher"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// HeadlessConfig configures the browser-based fetcher fallback.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory stores.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StorageConfig sets the optional blob mirror for raw snapshots.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for run report notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// EnrichConfig configures the registry identifier lookup. An empty URL
// disables enrichment.
type EnrichConfig struct {
	RegistryURL string `mapstructure:"registry_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DIRHARVEST")
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
	v.SetDefault("crawler.max_calls", 10)
	v.SetDefault("crawler.period_seconds", 1)
	v.SetDefault("crawler.max_concurrent", 10)
	v.SetDefault("crawler.batch_size", 50)
	v.SetDefault("crawler.global_record_cap", 0)
	v.SetDefault("crawler.region_timeout_seconds", 3600)
	v.SetDefault("crawler.page_size", 20)
	v.SetDefault("crawler.max_pages", 500)
	v.SetDefault("crawler.page_retries", 3)
	v.SetDefault("source.fetcher", "api")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "dirharvest-bot/0.1")
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxCalls <= 0 {
		return fmt.Errorf("crawler.max_calls must be > 0")
	}
	if c.Crawler.PeriodSeconds <= 0 {
		return fmt.Errorf("crawler.period_seconds must be > 0")
	}
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Source.Fetcher {
	case "api", "headless":
	default:
		return fmt.Errorf("source.fetcher must be api or headless")
	}
	if c.Source.Fetcher == "headless" && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when the headless fetcher is selected")
	}
	if c.Storage.GCSBucket != "" && c.DB.DSN == "" {
		return fmt.Errorf("storage.gcs_bucket requires db.dsn; the mirror supplements the primary store")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RatePeriod returns the sliding window length as a duration.
func (c Config) RatePeriod() time.Duration {
	return time.Duration(c.Crawler.PeriodSeconds) * time.Second
}

// RegionTimeout returns the per-region wall clock budget.
func (c Config) RegionTimeout() time.Duration {
	return time.Duration(c.Crawler.RegionTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the outbound request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
