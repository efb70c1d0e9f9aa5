// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from JSON plus
// environment overrides.
type Config struct {
	APIKey           string  `mapstructure:"api_key"`
	FeedURL          string  `mapstructure:"feed_url"`
	FeedAlternateURL string  `mapstructure:"feed_alternate_url"`
	TradeAPIURL      string  `mapstructure:"trade_api_url"`
	Pool             string  `mapstructure:"pool"`
	SlippagePercent  float64 `mapstructure:"slippage_percent"`
	PriorityFeeSol   float64 `mapstructure:"priority_fee_sol"`
	PollIntervalMs   int     `mapstructure:"poll_interval_ms"`
	HistoryPath      string  `mapstructure:"history_path"`
	LogDir           string  `mapstructure:"log_dir"`
	DebugLogging     bool    `mapstructure:"debug_logging"`
	DryRun           bool    `mapstructure:"dry_run"`
}

const (
	DefaultFeedURL          = "wss://pumpportal.fun/api/data"
	DefaultFeedAlternateURL = "ws://pumpportal.fun/api/data"
	DefaultTradeAPIURL      = "https://pumpportal.fun/api/trade"
	DefaultPool             = "pump"
	DefaultSlippagePercent  = 50.0
	DefaultPriorityFeeSol   = 0.001
	DefaultPollIntervalMs   = 1000
	DefaultHistoryPath      = "data/trading_history.json"
	DefaultLogDir           = "logs"
)

// Load reads configuration from the given path. A missing file is not an
// error: defaults plus environment variables are enough to run. Callers
// apply any flag overrides and then call Validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"feed_url":           DefaultFeedURL,
		"feed_alternate_url": DefaultFeedAlternateURL,
		"trade_api_url":      DefaultTradeAPIURL,
		"pool":               DefaultPool,
		"slippage_percent":   DefaultSlippagePercent,
		"priority_fee_sol":   DefaultPriorityFeeSol,
		"poll_interval_ms":   DefaultPollIntervalMs,
		"history_path":       DefaultHistoryPath,
		"log_dir":            DefaultLogDir,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	bindEnvironment(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// PollInterval returns the orchestrator evaluation interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Validate checks the effective configuration after file, environment and
// flag overrides have been applied.
func (cfg *Config) Validate() error {
	if err := validateURL(cfg.FeedURL, "ws"); err != nil {
		return errors.New("invalid feed URL protocol")
	}
	if cfg.FeedAlternateURL != "" {
		if err := validateURL(cfg.FeedAlternateURL, "ws"); err != nil {
			return errors.New("invalid alternate feed URL protocol")
		}
	}
	if err := validateURL(cfg.TradeAPIURL, "http"); err != nil {
		return errors.New("invalid trade API URL protocol")
	}
	if cfg.SlippagePercent < 0 || cfg.SlippagePercent > 100 {
		return errors.New("slippage_percent must be between 0 and 100")
	}
	if cfg.PriorityFeeSol < 0 {
		return errors.New("priority_fee_sol must be non-negative")
	}
	if cfg.PollIntervalMs <= 0 {
		return errors.New("invalid poll_interval_ms")
	}
	if cfg.Pool == "" {
		return errors.New("pool is required")
	}
	if !cfg.DryRun && cfg.APIKey == "" {
		return errors.New("api_key is required unless dry_run is enabled")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// bindEnvironment makes every setting overridable through a
// PUMPSELL_-prefixed variable (PUMPSELL_API_KEY, PUMPSELL_SLIPPAGE_PERCENT,
// ...). The API key in particular should come from the environment rather
// than the config file so it never ends up committed alongside trading
// parameters.
func bindEnvironment(v *viper.Viper) {
	v.SetEnvPrefix("PUMPSELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	keys := []string{
		"api_key",
		"feed_url",
		"feed_alternate_url",
		"trade_api_url",
		"pool",
		"slippage_percent",
		"priority_fee_sol",
		"poll_interval_ms",
		"history_path",
		"log_dir",
		"debug_logging",
		"dry_run",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}
