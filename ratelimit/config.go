/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/velumlabs/go-basekit/config"
)

const cfgDefaultKeyPrefix = "ratelimit"

const (
	cfgKeyEnabled             = "enabled"
	cfgKeyGlobalRate          = "global.rate"
	cfgKeyGlobalBurst         = "global.burst"
	cfgKeyPerKey              = "perKey"
	cfgKeyQueueSize           = "queue.size"
	cfgKeyQueueMaxMemory      = "queue.maxMemory"
	cfgKeyQueueOverflowPolicy = "queue.overflowPolicy"
	cfgKeyQueueBlockTimeout   = "queue.blockTimeout"
	cfgKeyWarnEnabled         = "warning.enabled"
	cfgKeyWarnInterval        = "warning.interval"
	cfgKeyWarnSummaryInterval = "warning.summaryInterval"
)

// Default values for the warning/summary knobs consumed by the rate-limited logger.
const (
	DefaultWarningInterval = 30 * time.Second
	DefaultSummaryInterval = 60 * time.Second
)

// BucketLimitConfig describes one token bucket in the configuration.
type BucketLimitConfig struct {
	Rate  float64 `mapstructure:"rate" yaml:"rate" json:"rate"`
	Burst float64 `mapstructure:"burst" yaml:"burst" json:"burst"`
}

// QueueConfig configures the overflow queue (buffered mode).
type QueueConfig struct {
	// Size > 0 enables buffered mode.
	Size int `mapstructure:"size" yaml:"size" json:"size"`

	// MaxMemory is an estimated memory budget for queued events
	// ("16M", "1Gi", plain byte counts are accepted). Zero means no budget.
	MaxMemory config.ByteSize `mapstructure:"maxMemory" yaml:"maxMemory" json:"maxMemory"`

	// OverflowPolicy is one of drop_oldest, drop_newest, block.
	OverflowPolicy OverflowPolicy `mapstructure:"overflowPolicy" yaml:"overflowPolicy" json:"overflowPolicy"`

	// BlockTimeout bounds the wait of the block policy.
	BlockTimeout config.TimeDuration `mapstructure:"blockTimeout" yaml:"blockTimeout" json:"blockTimeout"`
}

// WarningConfig configures the synthetic warnings emitted by the rate-limited logger.
type WarningConfig struct {
	// Enabled turns denied events into periodic warning events instead of silent drops.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Interval throttles the warnings themselves (at most one per key per interval).
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// SummaryInterval is how often an aggregated suppression summary may be emitted.
	SummaryInterval config.TimeDuration `mapstructure:"summaryInterval" yaml:"summaryInterval" json:"summaryInterval"`
}

// Config represents a set of configuration parameters for event rate limiting.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Global, when set (rate > 0), limits all events with a shared bucket.
	Global BucketLimitConfig `mapstructure:"global" yaml:"global" json:"global"`

	// PerKey creates an independent bucket per exact key.
	PerKey map[string]BucketLimitConfig `mapstructure:"perKey" yaml:"perKey" json:"perKey"`

	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue" json:"queue"`
	Warning WarningConfig `mapstructure:"warning" yaml:"warning" json:"warning"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQueueOverflowPolicy, string(OverflowPolicyDropNewest))
	dp.SetDefault(cfgKeyQueueBlockTimeout, DefaultOverflowBlockTimeout)
	dp.SetDefault(cfgKeyWarnInterval, DefaultWarningInterval)
	dp.SetDefault(cfgKeyWarnSummaryInterval, DefaultSummaryInterval)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Global.Rate, err = dp.GetFloat64(cfgKeyGlobalRate); err != nil {
		return err
	}
	if c.Global.Burst, err = dp.GetFloat64(cfgKeyGlobalBurst); err != nil {
		return err
	}
	if c.Global.Rate < 0 || c.Global.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyGlobalRate, fmt.Errorf("global rate and burst must not be negative"))
	}

	c.PerKey = nil
	if dp.IsSet(cfgKeyPerKey) {
		if err = dp.UnmarshalKey(cfgKeyPerKey, &c.PerKey); err != nil {
			return err
		}
	}

	if c.Queue.Size, err = dp.GetInt(cfgKeyQueueSize); err != nil {
		return err
	}
	if c.Queue.Size < 0 {
		return dp.WrapKeyErr(cfgKeyQueueSize, fmt.Errorf("queue size must not be negative"))
	}
	maxMemory, err := dp.GetSizeInBytes(cfgKeyQueueMaxMemory)
	if err != nil {
		return err
	}
	c.Queue.MaxMemory = config.ByteSize(maxMemory)
	policyStr, err := dp.GetStringFromSet(cfgKeyQueueOverflowPolicy, []string{
		string(OverflowPolicyDropOldest), string(OverflowPolicyDropNewest), string(OverflowPolicyBlock),
	}, true)
	if err != nil {
		return err
	}
	c.Queue.OverflowPolicy = OverflowPolicy(policyStr)
	blockTimeout, err := dp.GetDuration(cfgKeyQueueBlockTimeout)
	if err != nil {
		return err
	}
	c.Queue.BlockTimeout = config.TimeDuration(blockTimeout)

	if c.Warning.Enabled, err = dp.GetBool(cfgKeyWarnEnabled); err != nil {
		return err
	}
	warnInterval, err := dp.GetDuration(cfgKeyWarnInterval)
	if err != nil {
		return err
	}
	c.Warning.Interval = config.TimeDuration(warnInterval)
	summaryInterval, err := dp.GetDuration(cfgKeyWarnSummaryInterval)
	if err != nil {
		return err
	}
	c.Warning.SummaryInterval = config.TimeDuration(summaryInterval)

	return nil
}

// Options converts the parsed configuration into EventLimiter options.
func (c *Config) Options() Options {
	opts := Options{
		MaxQueueSize:   c.Queue.Size,
		MaxQueueMemory: uint64(c.Queue.MaxMemory),
		OverflowPolicy: c.Queue.OverflowPolicy,
		BlockTimeout:   time.Duration(c.Queue.BlockTimeout),
	}
	if c.Global.Rate > 0 || c.Global.Burst > 0 {
		opts.GlobalLimit = &BucketLimit{Rate: c.Global.Rate, Burst: c.Global.Burst}
	}
	if len(c.PerKey) != 0 {
		opts.PerKeyLimits = make(map[string]BucketLimit, len(c.PerKey))
		for key, lim := range c.PerKey {
			opts.PerKeyLimits[key] = BucketLimit{Rate: lim.Rate, Burst: lim.Burst}
		}
	}
	return opts
}
