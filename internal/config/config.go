// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Browser BrowserConfig `mapstructure:"browser"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Finder  FinderConfig  `mapstructure:"finder"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlConfig governs the capture crawl pipeline.
type CrawlConfig struct {
	MaxPages        int           `mapstructure:"max_pages"`
	Workers         int           `mapstructure:"workers"`
	Devices         []string      `mapstructure:"devices"`
	FullPage        bool          `mapstructure:"full_page"`
	SaveHTML        bool          `mapstructure:"save_html"`
	ExtractMeta     bool          `mapstructure:"extract_meta"`
	Interactive     bool          `mapstructure:"interactive"`
	ExtractDesign   bool          `mapstructure:"extract_design"`
	DownloadImages  bool          `mapstructure:"download_images"`
	MaxImages       int           `mapstructure:"max_images"`
	DismissOverlays bool          `mapstructure:"dismiss_overlays"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	JPEGQuality     int           `mapstructure:"jpeg_quality"`
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxTabs           int           `mapstructure:"max_tabs"`
	HostQPS           float64       `mapstructure:"host_qps"`
}

// OracleConfig points at the local LLM used for page classification.
type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FinderConfig governs template discovery runs.
type FinderConfig struct {
	MaxPagesToCheck int `mapstructure:"max_pages_to_check"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	// Backend is "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig controls the optional crawl history database. An empty DSN
// disables persistence.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for crawl-completion notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the ops HTTP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITESNAP")
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
	v.SetDefault("logging.development", false)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.full_page", true)
	v.SetDefault("crawl.save_html", true)
	v.SetDefault("crawl.extract_meta", true)
	v.SetDefault("crawl.interactive", false)
	v.SetDefault("crawl.extract_design", true)
	v.SetDefault("crawl.download_images", false)
	v.SetDefault("crawl.max_images", 30)
	v.SetDefault("crawl.dismiss_overlays", true)
	v.SetDefault("crawl.settle_delay", 1500*time.Millisecond)
	v.SetDefault("crawl.jpeg_quality", 85)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "sitesnap/1.0")
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.max_tabs", 4)
	v.SetDefault("browser.host_qps", 2.0)
	v.SetDefault("oracle.base_url", "http://localhost:11434")
	v.SetDefault("oracle.model", "llama3.1")
	v.SetDefault("oracle.timeout", 60*time.Second)
	v.SetDefault("finder.max_pages_to_check", 40)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./snapshots")
	v.SetDefault("storage.gcs_prefix", "snapshots")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("pubsub.topic_name", "sitesnap-crawls")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if q := c.Crawl.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("crawl.jpeg_quality must be in [1,100]")
	}
	if c.Browser.MaxTabs <= 0 {
		return fmt.Errorf("browser.max_tabs must be > 0")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model must be set")
	}
	if c.Finder.MaxPagesToCheck <= 0 {
		return fmt.Errorf("finder.max_pages_to_check must be > 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or gcs, got %q", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	return nil
}
