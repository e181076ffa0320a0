// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rentware/catalog-crawler/internal/crawler"
)

// Config captures every configuration knob loaded via Viper. It is
// immutable after Load: missing optional fields get defaults, missing
// required fields fail validation before any network I/O.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig identifies the single target host of the crawl.
type SiteConfig struct {
	Host             string `mapstructure:"host"`
	Scheme           string `mapstructure:"scheme"`
	StartPath        string `mapstructure:"start_path"`
	ConnectTimeoutMs int    `mapstructure:"connect_timeout_ms"`
}

// FetcherConfig tunes the colly collector. Extra is the escape hatch
// for options the core forwards opaquely to the fetcher.
type FetcherConfig struct {
	UserAgent        string            `mapstructure:"user_agent"`
	Concurrency      int               `mapstructure:"concurrency"`
	DelayMs          int               `mapstructure:"delay_ms"`
	RequestTimeoutMs int               `mapstructure:"request_timeout_ms"`
	Extra            map[string]string `mapstructure:"extra"`
}

// OutputConfig locates the sink.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// site.host and output.dir have no defaults, and AutomaticEnv only
	// resolves keys viper already knows. Bind them so an env-only run
	// can supply the required fields without a config file.
	for _, key := range []string{"site.host", "output.dir"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

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
	v.SetDefault("site.scheme", "https")
	v.SetDefault("site.start_path", "/")
	v.SetDefault("site.connect_timeout_ms", 10000)
	v.SetDefault("fetcher.user_agent", "catalog-crawler/1.0")
	v.SetDefault("fetcher.concurrency", 2)
	v.SetDefault("fetcher.delay_ms", 0)
	v.SetDefault("fetcher.request_timeout_ms", 15000)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Missing
// required fields surface as configuration-kind errors so the process
// can report them before opening any socket.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Site.Host) == "" {
		return crawler.ConfigurationError("site.host is required")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return crawler.ConfigurationError("output.dir is required")
	}
	if c.Site.ConnectTimeoutMs <= 0 {
		return crawler.ConfigurationError("site.connect_timeout_ms must be > 0")
	}
	if c.Fetcher.Concurrency <= 0 {
		return crawler.ConfigurationError("fetcher.concurrency must be > 0")
	}
	if c.Fetcher.RequestTimeoutMs <= 0 {
		return crawler.ConfigurationError("fetcher.request_timeout_ms must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return crawler.ConfigurationError("server.port must be > 0 when the status server is enabled")
	}
	return nil
}

// ConnectTimeout converts the preflight budget into a duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Site.ConnectTimeoutMs) * time.Millisecond
}

// Delay converts the per-request politeness delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Fetcher.DelayMs) * time.Millisecond
}

// RequestTimeout converts the per-fetch budget into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fetcher.RequestTimeoutMs) * time.Millisecond
}

// EngineConfig maps the loaded configuration onto the engine's
// viper-free form.
func (c Config) EngineConfig() crawler.Config {
	return crawler.Config{
		Host:           c.Site.Host,
		Scheme:         c.Site.Scheme,
		StartPath:      c.Site.StartPath,
		ConnectTimeout: c.ConnectTimeout(),
		OutputDir:      c.Output.Dir,
		Concurrency:    c.Fetcher.Concurrency,
	}
}
