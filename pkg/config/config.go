package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github/martinmaurice/quota/pkg/enum"
	"github/martinmaurice/quota/pkg/env"
)

const (
	DefaultWindow    = 15 * time.Minute
	DefaultLimit     = 20
	DefaultKeyPrefix = "quota"
)

var (
	FileReadErr                  = errors.New("could not read config file")
	RawConfigStructValidationErr = errors.New("invalid config")
)

type actionRawConfig struct {
	Limit *int64 `mapstructure:"limit"`
}

type rawConfig struct {
	RateLimits *struct {
		Window    time.Duration              `mapstructure:"window"`
		KeyPrefix string                     `mapstructure:"key_prefix"`
		Items     map[string]actionRawConfig `mapstructure:"items"`
	} `mapstructure:"rate_limits"`
	Metrics *struct {
		Enabled *bool
		Path    string
	}
}

type RateLimitsConfig struct {
	Window    time.Duration
	KeyPrefix string
	Limits    map[enum.Action]int64
}

func (r RateLimitsConfig) validate() error {
	if r.Window < time.Second {
		return fmt.Errorf("%w: rate_limits.window must be at least one second", RawConfigStructValidationErr)
	}

	for _, action := range enum.Actions() {
		limit, ok := r.Limits[action]
		if !ok {
			return fmt.Errorf("%w: missing limit for action %s", RawConfigStructValidationErr, action)
		}
		if limit <= 0 {
			return fmt.Errorf("%w: rate_limits.items.%s.limit must be greater than zero", RawConfigStructValidationErr, action)
		}
	}

	return nil
}

type metricConfig struct {
	Enabled bool
	Path    string
}

type Config struct {
	RateLimits RateLimitsConfig
	Metrics    metricConfig
}

func parseRateLimitsConfig(rc *rawConfig) (*RateLimitsConfig, error) {
	if rc.RateLimits == nil {
		return nil, fmt.Errorf("%w: missing rate_limits section", RawConfigStructValidationErr)
	}

	cfg := RateLimitsConfig{
		Window:    DefaultWindow,
		KeyPrefix: DefaultKeyPrefix,
		Limits:    make(map[enum.Action]int64),
	}

	if rc.RateLimits.Window != 0 {
		cfg.Window = rc.RateLimits.Window
	}

	if rc.RateLimits.KeyPrefix != "" {
		cfg.KeyPrefix = rc.RateLimits.KeyPrefix
	}

	for _, action := range enum.Actions() {
		cfg.Limits[action] = DefaultLimit
	}

	for name, item := range rc.RateLimits.Items {
		action, ok := enum.ParseAction(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown action %q", RawConfigStructValidationErr, name)
		}
		if item.Limit == nil {
			return nil, fmt.Errorf("%w: rate_limits.items.%s.limit is required", RawConfigStructValidationErr, name)
		}
		cfg.Limits[action] = *item.Limit
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parseMetricConfig(rc *rawConfig) (*metricConfig, error) {
	metrics := metricConfig{
		Enabled: true,
		Path:    "/metrics",
	}

	if rc.Metrics != nil {
		if rc.Metrics.Enabled != nil {
			metrics.Enabled = *rc.Metrics.Enabled
		}

		if rc.Metrics.Path != "" {
			metrics.Path = rc.Metrics.Path
		} else if metrics.Enabled {
			return nil, fmt.Errorf("%w: metrics path could not be empty", RawConfigStructValidationErr)
		}
	}

	return &metrics, nil
}

func parseRawConfig(rc *rawConfig) (*Config, error) {
	rateLimits, err := parseRateLimitsConfig(rc)
	if err != nil {
		return nil, err
	}

	metric, err := parseMetricConfig(rc)
	if err != nil {
		return nil, err
	}

	return &Config{
		RateLimits: *rateLimits,
		Metrics:    *metric,
	}, nil
}

var (
	once           sync.Once
	configInstance *Config
)

func newConfig(path string) (*Config, error) {
	slog.Info("loading config", "path", path)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", FileReadErr, err)
	}

	var rc rawConfig
	if err := v.Unmarshal(&rc); err != nil {
		return nil, fmt.Errorf("%w: unable to decode raw config: %w", RawConfigStructValidationErr, err)
	}

	return parseRawConfig(&rc)
}

func GetConfig() *Config {
	once.Do(func() {
		var err error
		configInstance, err = newConfig(env.GetEnv().ConfigFile)
		if err != nil {
			log.Fatalf("Could not create new config err: %v", err)
		}
	})
	return configInstance
}
