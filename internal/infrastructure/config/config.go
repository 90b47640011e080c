package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"pricedeck/internal/domain"
)

type FeedConfig struct {
	Enabled  bool   `toml:"enabled"`
	WsURL    string `toml:"ws_url"`
	Token    string `toml:"token"`
	TokenEnv string `toml:"token_env"`
}

type Config struct {
	App struct {
		DefaultSymbol string `toml:"default_symbol"`
		Retention     int    `toml:"retention"`
	} `toml:"app"`

	Limits struct {
		CoalesceMs     int `toml:"coalesce_ms"`
		ReconnectMinMs int `toml:"reconnect_min_ms"`
		ReconnectMaxMs int `toml:"reconnect_max_ms"`
	} `toml:"limits"`

	UnitRate struct {
		URL        string `toml:"url"`
		RefreshSec int    `toml:"refresh_sec"`
	} `toml:"unit_rate"`

	Feeds map[string]FeedConfig `toml:"feeds"`

	Storage struct {
		Driver      string `toml:"driver"` // none | sqlite | postgres | redis | composite
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
		RedisAddr   string `toml:"redis_addr"`
		RedisPrefix string `toml:"redis_prefix"`
		RedisTTLSec int    `toml:"redis_ttl_sec"`
	} `toml:"storage"`
}

// Sources a config file may reference, keyed by their lowercase TOML names.
var knownFeeds = map[string]domain.Source{
	"binance":   domain.SourceBinance,
	"bybit":     domain.SourceBybit,
	"okx":       domain.SourceOKX,
	"coinbase":  domain.SourceCoinbase,
	"alltick":   domain.SourceAllTick,
	"pyth":      domain.SourcePyth,
	"pythlazer": domain.SourcePythLazer,
}

// Default token env vars for the gated vendors.
var defaultTokenEnv = map[string]string{
	"alltick":   "ALLTICK_TOKEN",
	"pythlazer": "PYTH_LAZER_TOKEN",
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: every feed
// enabled on its vendor endpoint, tokens from the environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.App.DefaultSymbol == "" {
		cfg.App.DefaultSymbol = string(domain.SymbolBTCUSDT)
	}
	if cfg.App.Retention <= 0 {
		cfg.App.Retention = 4096
	}
	if cfg.Limits.CoalesceMs <= 0 {
		cfg.Limits.CoalesceMs = 50
	}
	if cfg.Limits.ReconnectMinMs <= 0 {
		cfg.Limits.ReconnectMinMs = 500
	}
	if cfg.Limits.ReconnectMaxMs <= 0 {
		cfg.Limits.ReconnectMaxMs = 10000
	}
	if cfg.UnitRate.RefreshSec <= 0 {
		cfg.UnitRate.RefreshSec = 10
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "none"
	}

	if cfg.Feeds == nil {
		cfg.Feeds = make(map[string]FeedConfig)
	}
	for name := range knownFeeds {
		fc, present := cfg.Feeds[name]
		if !present {
			// Feeds not mentioned in the file default to enabled.
			fc.Enabled = true
		}
		if fc.TokenEnv == "" {
			fc.TokenEnv = defaultTokenEnv[name]
		}
		cfg.Feeds[name] = fc
	}
}

func validate(cfg *Config) error {
	if _, err := domain.ParseSymbol(cfg.App.DefaultSymbol); err != nil {
		return fmt.Errorf("app.default_symbol: %w", err)
	}
	for name := range cfg.Feeds {
		if _, ok := knownFeeds[strings.ToLower(name)]; !ok {
			return fmt.Errorf("feeds.%s: unknown feed", name)
		}
	}
	switch cfg.Storage.Driver {
	case "none", "sqlite", "postgres", "redis", "composite":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path empty but driver is sqlite")
	}
	if cfg.Storage.Driver == "postgres" && cfg.Storage.PostgresDSN == "" {
		return errors.New("storage.postgres_dsn empty but driver is postgres")
	}
	if cfg.Storage.Driver == "redis" && cfg.Storage.RedisAddr == "" {
		return errors.New("storage.redis_addr empty but driver is redis")
	}
	return nil
}

// Enabled reports whether a source is switched on in this config.
func (c *Config) Enabled(src domain.Source) bool {
	for name, known := range knownFeeds {
		if known == src {
			return c.Feeds[name].Enabled
		}
	}
	return false
}

// URLOverrides collects the per-feed ws_url overrides, keyed by source.
func (c *Config) URLOverrides() map[domain.Source]string {
	out := make(map[domain.Source]string)
	for name, fc := range c.Feeds {
		if u := strings.TrimSpace(fc.WsURL); u != "" {
			out[knownFeeds[name]] = u
		}
	}
	return out
}

// Tokens resolves each feed's credential: explicit config value first, then
// the token env var. Absent tokens stay absent; that deterministically
// disables the gated feeds at routing time.
func (c *Config) Tokens() map[domain.Source]string {
	out := make(map[domain.Source]string)
	for name, fc := range c.Feeds {
		token := strings.TrimSpace(fc.Token)
		if token == "" && fc.TokenEnv != "" {
			token = strings.TrimSpace(os.Getenv(fc.TokenEnv))
		}
		if token != "" {
			out[knownFeeds[name]] = token
		}
	}
	return out
}

func (c *Config) CoalesceWindow() time.Duration {
	return time.Duration(c.Limits.CoalesceMs) * time.Millisecond
}

func (c *Config) ReconnectMin() time.Duration {
	return time.Duration(c.Limits.ReconnectMinMs) * time.Millisecond
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Limits.ReconnectMaxMs) * time.Millisecond
}

func (c *Config) UnitRateRefresh() time.Duration {
	return time.Duration(c.UnitRate.RefreshSec) * time.Second
}
