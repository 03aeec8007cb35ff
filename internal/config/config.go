// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Index     IndexConfig     `mapstructure:"index"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Failures  FailuresConfig  `mapstructure:"failures"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServiceConfig points at the extraction service.
type ServiceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	FilterMode     string        `mapstructure:"filter_mode"`
	CacheBust      string        `mapstructure:"cache_bust"`
}

// LifecycleConfig names the container tool and the units it may control.
type LifecycleConfig struct {
	Binary          string        `mapstructure:"binary"`
	Candidates      []string      `mapstructure:"candidates"`
	DefaultName     string        `mapstructure:"default_name"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	DiscoverTimeout time.Duration `mapstructure:"discover_timeout"`
}

// IndexConfig describes the paginated sitemap index.
type IndexConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StartPage      int           `mapstructure:"start_page"`
	MaxPage        int           `mapstructure:"max_page"`
	MaxURLsPerPage int           `mapstructure:"max_urls_per_page"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// HarvestConfig governs batching, retries and pacing.
type HarvestConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	PageDelay        time.Duration `mapstructure:"page_delay"`
	BatchDelay       time.Duration `mapstructure:"batch_delay"`
	RestartInterval  int           `mapstructure:"restart_interval"`
	ExistenceTimeout time.Duration `mapstructure:"existence_timeout"`
	HostRPS          float64       `mapstructure:"host_rps"`
}

// BudgetConfig is one bounded health poll.
type BudgetConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Attempts int           `mapstructure:"attempts"`
}

// RecoveryConfig holds the restart pause and the per-trigger poll budgets.
type RecoveryConfig struct {
	Pause        time.Duration `mapstructure:"pause"`
	Preventive   BudgetConfig  `mapstructure:"preventive"`
	Crash        BudgetConfig  `mapstructure:"crash"`
	Unresponsive BudgetConfig  `mapstructure:"unresponsive"`
}

// StorageConfig selects where artifacts are written.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	OutputDir string `mapstructure:"output_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// FailuresConfig controls the failure log sinks.
type FailuresConfig struct {
	Path        string `mapstructure:"path"`
	Truncate    bool   `mapstructure:"truncate"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
}

// MetricsConfig enables the status server. Port 0 disables it.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
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
	v.SetDefault("service.base_url", "http://localhost:11235")
	v.SetDefault("service.probe_timeout", 10*time.Second)
	v.SetDefault("service.extract_timeout", 60*time.Second)
	v.SetDefault("service.filter_mode", "fit")
	v.SetDefault("service.cache_bust", "0")
	v.SetDefault("lifecycle.binary", "docker")
	v.SetDefault("lifecycle.candidates", []string{"crawl4ai", "crawl4ai-server", "crawl4ai_server"})
	v.SetDefault("lifecycle.default_name", "crawl4ai")
	v.SetDefault("lifecycle.command_timeout", 30*time.Second)
	v.SetDefault("lifecycle.discover_timeout", 10*time.Second)
	v.SetDefault("index.base_url", "https://www.scrum.org/sitemap.xml")
	v.SetDefault("index.start_page", 1)
	v.SetDefault("index.max_page", 10)
	v.SetDefault("index.max_urls_per_page", 2000)
	v.SetDefault("index.timeout", 15*time.Second)
	v.SetDefault("index.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("harvest.batch_size", 50)
	v.SetDefault("harvest.max_attempts", 3)
	v.SetDefault("harvest.retry_delay", 2*time.Second)
	v.SetDefault("harvest.page_delay", 2*time.Second)
	v.SetDefault("harvest.batch_delay", 30*time.Second)
	v.SetDefault("harvest.restart_interval", 50)
	v.SetDefault("harvest.existence_timeout", 10*time.Second)
	v.SetDefault("harvest.host_rps", 0)
	v.SetDefault("recovery.pause", 5*time.Second)
	v.SetDefault("recovery.preventive.interval", time.Second)
	v.SetDefault("recovery.preventive.attempts", 60)
	v.SetDefault("recovery.crash.interval", time.Second)
	v.SetDefault("recovery.crash.attempts", 60)
	v.SetDefault("recovery.unresponsive.interval", 10*time.Second)
	v.SetDefault("recovery.unresponsive.attempts", 12)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.output_dir", "data/content")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("failures.path", "data/scrape_errors.log")
	v.SetDefault("failures.truncate", true)
	v.SetDefault("failures.postgres_dsn", "")
	v.SetDefault("failures.table", "scrape_failures")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	if c.Index.BaseURL == "" {
		return fmt.Errorf("index.base_url is required")
	}
	if c.Index.StartPage < 1 {
		return fmt.Errorf("index.start_page must be >= 1")
	}
	if c.Index.MaxPage < c.Index.StartPage {
		return fmt.Errorf("index.max_page must be >= index.start_page")
	}
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("harvest.batch_size must be > 0")
	}
	if c.Harvest.MaxAttempts <= 0 {
		return fmt.Errorf("harvest.max_attempts must be > 0")
	}
	if c.Harvest.RestartInterval < 0 {
		return fmt.Errorf("harvest.restart_interval must be >= 0")
	}
	for name, b := range map[string]BudgetConfig{
		"preventive":   c.Recovery.Preventive,
		"crash":        c.Recovery.Crash,
		"unresponsive": c.Recovery.Unresponsive,
	} {
		if b.Attempts <= 0 {
			return fmt.Errorf("recovery.%s.attempts must be > 0", name)
		}
	}
	switch strings.ToLower(c.Storage.Provider) {
	case "local":
		if c.Storage.OutputDir == "" {
			return fmt.Errorf("storage.output_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.Metrics.Port < 0 {
		return fmt.Errorf("metrics.port must be >= 0")
	}
	return nil
}
