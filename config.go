package vidquota

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultTimeout            = 120 * time.Second
	DefaultPricePerMonthCents = 2990
	DefaultTimeZone           = "UTC"
)

// Config is the top-level engine configuration.
type Config struct {
	// Mock replaces the remote video provider with provider/mock.
	Mock bool `yaml:"mock"`

	// Timeout bounds a single remote generation call.
	Timeout time.Duration `yaml:"timeout"`

	// TimeZone names the IANA zone whose calendar day is the usage window.
	TimeZone string `yaml:"timezone"`

	PricePerMonthCents int64 `yaml:"price_per_month_cents"`

	Limits LimitsConfig   `yaml:"limits"`
	Video  ProviderConfig `yaml:"video"`
	Text   ProviderConfig `yaml:"text"`
}

// LimitsConfig overrides the daily limit tables.
type LimitsConfig struct {
	Free   Limits `yaml:"free"`
	Member Limits `yaml:"member"`
}

// ProviderConfig configures a remote provider adapter.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Auth    Auth          `yaml:"auth"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("vidquota: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("vidquota: parse config: %w", err)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// WithDefaults returns a copy of c with zero fields set to their defaults.
// Limit tables are merged per model, so a config may override one entry.
func (c Config) WithDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TimeZone == "" {
		c.TimeZone = DefaultTimeZone
	}
	if c.PricePerMonthCents == 0 {
		c.PricePerMonthCents = DefaultPricePerMonthCents
	}
	c.Limits.Free = mergeLimits(DefaultFreeLimits, c.Limits.Free)
	c.Limits.Member = mergeLimits(DefaultMemberLimits, c.Limits.Member)
	return c
}

// Validate checks the config for consistency.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("vidquota: config: timeout must be positive, got %s", c.Timeout)
	}
	if c.PricePerMonthCents < 0 {
		return fmt.Errorf("vidquota: config: price_per_month_cents must not be negative")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("vidquota: config: timezone %q: %w", c.TimeZone, err)
	}
	if _, err := NewTierPolicy(c.Limits.Free, c.Limits.Member); err != nil {
		return fmt.Errorf("vidquota: config: %w", err)
	}
	if !c.Mock && c.Video.BaseURL == "" {
		return fmt.Errorf("vidquota: config: video.base_url is required unless mock is enabled")
	}
	return nil
}

// Location returns the usage-window time zone, UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Policy builds the tier policy described by the limit tables.
func (c Config) Policy() (*TierPolicy, error) {
	c = c.WithDefaults()
	return NewTierPolicy(c.Limits.Free, c.Limits.Member)
}

func mergeLimits(base, override Limits) Limits {
	out := base.clone()
	for k, v := range override {
		out[k] = v
	}
	return out
}
