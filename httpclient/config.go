/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/velumlabs/go-basekit/config"
	"github.com/velumlabs/go-basekit/ratelimit"
	"github.com/velumlabs/go-basekit/retry"
)

const (
	// DefaultClientWaitTimeout is a default timeout for a client to wait for a request.
	DefaultClientWaitTimeout = 10 * time.Second

	// DefaultThrottlingMaxKeys is a default number of hosts tracked by the throttling limiter.
	DefaultThrottlingMaxKeys = 10000

	// RetryPolicyExponential is a policy for exponential retries.
	RetryPolicyExponential = "exponential"

	// RetryPolicyConstant is a policy for constant retries.
	RetryPolicyConstant = "constant"

	// ThrottlingAlgLeakyBucket is the GCRA (leaky bucket) throttling algorithm.
	ThrottlingAlgLeakyBucket = "leaky_bucket"

	// ThrottlingAlgSlidingWindow is the sliding window throttling algorithm.
	ThrottlingAlgSlidingWindow = "sliding_window"
)

// configuration parameter keys
const (
	keyTimeout = "timeout"

	keyRetriesEnabled             = "retries.enabled"
	keyRetriesMaxAttempts         = "retries.maxAttempts"
	keyRetriesPolicyStrategy      = "retries.policy.strategy"
	keyRetriesPolicyExpInterval   = "retries.policy.exponentialBackoffInitialInterval"
	keyRetriesPolicyExpMultiplier = "retries.policy.exponentialBackoffMultiplier"
	keyRetriesPolicyConstInterval = "retries.policy.constantBackoffInterval"

	keyRateLimitsEnabled     = "rateLimits.enabled"
	keyRateLimitsLimit       = "rateLimits.limit"
	keyRateLimitsBurst       = "rateLimits.burst"
	keyRateLimitsWaitTimeout = "rateLimits.waitTimeout"

	keyLoggerEnabled       = "logger.enabled"
	keyLoggerMode          = "logger.mode"
	keyLoggerSlowThreshold = "logger.slowRequestThreshold"

	keyMetricsEnabled = "metrics.enabled"

	keyTransportCacheEnabled   = "transportCache.enabled"
	keyTransportCacheThreshold = "transportCache.failureThreshold"

	keyThrottlingEnabled       = "throttling.enabled"
	keyThrottlingAlgorithm     = "throttling.algorithm"
	keyThrottlingRate          = "throttling.rate"
	keyThrottlingInterval      = "throttling.interval"
	keyThrottlingBurst         = "throttling.burst"
	keyThrottlingMaxKeys       = "throttling.maxKeys"
	keyThrottlingIncludedHosts = "throttling.includedHosts"
	keyThrottlingExcludedHosts = "throttling.excludedHosts"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

func getNonNegativeInt(dp config.DataProvider, key string) (int, error) {
	v, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dp.WrapKeyErr(key, errors.New("must not be negative"))
	}
	return v, nil
}

func getNonNegativeDuration(dp config.DataProvider, key string) (time.Duration, error) {
	v, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dp.WrapKeyErr(key, errors.New("must not be negative"))
	}
	return v, nil
}

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	// Enabled is a flag that enables rate limiting.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Limit is the maximum number of requests per second that can be made.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// WaitTimeout is the maximum time to wait for a request to be made.
	WaitTimeout time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(keyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Limit, err = dp.GetInt(keyRateLimitsLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(keyRateLimitsLimit, errors.New("must be positive"))
	}
	if c.Burst, err = getNonNegativeInt(dp, keyRateLimitsBurst); err != nil {
		return err
	}
	c.WaitTimeout, err = getNonNegativeDuration(dp, keyRateLimitsWaitTimeout)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *RateLimitConfig) SetProviderDefaults(_ config.DataProvider) {}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{
		Burst:       c.Burst,
		WaitTimeout: c.WaitTimeout,
	}
}

// PolicyConfig represents configuration options for the retry policy.
type PolicyConfig struct {
	// Strategy is a strategy for retry policy.
	Strategy string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`

	// ExponentialBackoffInitialInterval is the initial interval for exponential backoff.
	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"` //nolint:lll

	// ExponentialBackoffMultiplier is the multiplier for exponential backoff.
	ExponentialBackoffMultiplier float64 `mapstructure:"exponentialBackoffMultiplier" yaml:"exponentialBackoffMultiplier" json:"exponentialBackoffMultiplier"` //nolint:lll

	// ConstantBackoffInterval is the interval for constant backoff.
	ConstantBackoffInterval time.Duration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval" json:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) (err error) {
	if c.Strategy, err = dp.GetString(keyRetriesPolicyStrategy); err != nil {
		return err
	}

	switch c.Strategy {
	case "":
		return nil

	case RetryPolicyExponential:
		if c.ExponentialBackoffInitialInterval, err = getNonNegativeDuration(dp, keyRetriesPolicyExpInterval); err != nil {
			return err
		}
		if c.ExponentialBackoffMultiplier, err = dp.GetFloat64(keyRetriesPolicyExpMultiplier); err != nil {
			return err
		}
		if c.ExponentialBackoffMultiplier <= 1 {
			return dp.WrapKeyErr(keyRetriesPolicyExpMultiplier, errors.New("must be greater than 1"))
		}
		return nil

	case RetryPolicyConstant:
		c.ConstantBackoffInterval, err = getNonNegativeDuration(dp, keyRetriesPolicyConstInterval)
		return err

	default:
		return dp.WrapKeyErr(keyRetriesPolicyStrategy,
			errors.New("must be one of: [exponential, constant]"))
	}
}

// SetProviderDefaults is part of config interface implementation.
func (c *PolicyConfig) SetProviderDefaults(_ config.DataProvider) {}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	// Enabled is a flag that enables retries.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// MaxAttempts is the maximum number of attempts to retry the request.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// Policy of a retry: [exponential, constant]. default is exponential.
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// GetPolicy returns a retry policy based on strategy or nil if none is provided.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewExponentialBackOff()
			bf.InitialInterval = c.Policy.ExponentialBackoffInitialInterval
			bf.Multiplier = c.Policy.ExponentialBackoffMultiplier
			bf.Reset()
			return bf
		})
	case RetryPolicyConstant:
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewConstantBackOff(c.Policy.ConstantBackoffInterval)
			bf.Reset()
			return bf
		})
	}
	return nil
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(keyRetriesEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts, err = getNonNegativeInt(dp, keyRetriesMaxAttempts); err != nil {
		return err
	}
	return c.Policy.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *RetriesConfig) SetProviderDefaults(_ config.DataProvider) {}

// TransportOpts returns transport options.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{MaxRetryAttempts: c.MaxAttempts}
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// SlowRequestThreshold is a threshold for slow requests.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`

	// Mode of logging.
	Mode string `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(keyLoggerEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if c.SlowRequestThreshold, err = getNonNegativeDuration(dp, keyLoggerSlowThreshold); err != nil {
		return err
	}
	c.Mode, err = dp.GetStringFromSet(keyLoggerMode, []string{
		string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed),
	}, true)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *LoggerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(keyLoggerMode, string(LoggingModeAll))
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{
		Mode:                 LoggingMode(c.Mode),
		SlowRequestThreshold: c.SlowRequestThreshold,
	}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) (err error) {
	c.Enabled, err = dp.GetBool(keyMetricsEnabled)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *MetricsConfig) SetProviderDefaults(_ config.DataProvider) {}

// TransportCacheConfig represents configuration options for the per-scheme transport cache.
type TransportCacheConfig struct {
	// Enabled is a flag that enables the transport cache.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// FailureThreshold is the number of consecutive transport failures that evicts a cached transport.
	FailureThreshold int `mapstructure:"failureThreshold" yaml:"failureThreshold" json:"failureThreshold"`
}

// Set is part of config interface implementation.
func (c *TransportCacheConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(keyTransportCacheEnabled); err != nil {
		return err
	}
	c.FailureThreshold, err = getNonNegativeInt(dp, keyTransportCacheThreshold)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *TransportCacheConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(keyTransportCacheThreshold, DefaultTransportFailureThreshold)
}

// ThrottlingConfig represents configuration options for per-host throttling of outgoing requests.
type ThrottlingConfig struct {
	// Enabled is a flag that enables throttling.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Algorithm is one of leaky_bucket, sliding_window.
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`

	// Rate is the maximum number of requests per Interval for one host.
	Rate int `mapstructure:"rate" yaml:"rate" json:"rate"`

	// Interval is the length of the throttling window.
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// Burst allows temporary spikes (leaky_bucket algorithm only).
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// MaxKeys bounds the number of tracked hosts.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	// IncludedHosts restricts throttling to hosts matching one of the glob patterns.
	IncludedHosts []string `mapstructure:"includedHosts" yaml:"includedHosts" json:"includedHosts"`

	// ExcludedHosts exempts hosts matching one of the glob patterns from throttling.
	ExcludedHosts []string `mapstructure:"excludedHosts" yaml:"excludedHosts" json:"excludedHosts"`
}

// Set is part of config interface implementation.
func (c *ThrottlingConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(keyThrottlingEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Algorithm, err = dp.GetStringFromSet(keyThrottlingAlgorithm, []string{
		ThrottlingAlgLeakyBucket, ThrottlingAlgSlidingWindow,
	}, true); err != nil {
		return err
	}

	if c.Rate, err = dp.GetInt(keyThrottlingRate); err != nil {
		return err
	}
	if c.Rate <= 0 {
		return dp.WrapKeyErr(keyThrottlingRate, errors.New("must be positive"))
	}
	if c.Interval, err = dp.GetDuration(keyThrottlingInterval); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return dp.WrapKeyErr(keyThrottlingInterval, errors.New("must be positive"))
	}
	if c.Burst, err = getNonNegativeInt(dp, keyThrottlingBurst); err != nil {
		return err
	}
	if c.MaxKeys, err = getNonNegativeInt(dp, keyThrottlingMaxKeys); err != nil {
		return err
	}

	if c.IncludedHosts, err = dp.GetStringSlice(keyThrottlingIncludedHosts); err != nil {
		return err
	}
	if c.ExcludedHosts, err = dp.GetStringSlice(keyThrottlingExcludedHosts); err != nil {
		return err
	}
	if len(c.IncludedHosts) != 0 && len(c.ExcludedHosts) != 0 {
		return dp.WrapKeyErr(keyThrottlingIncludedHosts,
			errors.New("included and excluded hosts cannot be used together"))
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *ThrottlingConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(keyThrottlingAlgorithm, ThrottlingAlgLeakyBucket)
	dp.SetDefault(keyThrottlingInterval, time.Second)
	dp.SetDefault(keyThrottlingMaxKeys, DefaultThrottlingMaxKeys)
}

// MakeLimiter builds a per-host key limiter according to the configuration.
func (c *ThrottlingConfig) MakeLimiter() (ratelimit.KeyLimiter, error) {
	maxRate := ratelimit.Rate{Count: c.Rate, Duration: c.Interval}
	switch c.Algorithm {
	case ThrottlingAlgSlidingWindow:
		return ratelimit.NewSlidingWindowLimiter(maxRate, c.MaxKeys)
	case ThrottlingAlgLeakyBucket, "":
		return ratelimit.NewLeakyBucketLimiter(maxRate, c.Burst, c.MaxKeys)
	}
	return nil, fmt.Errorf("unknown throttling algorithm %q", c.Algorithm)
}

// TransportOpts returns transport options.
func (c *ThrottlingConfig) TransportOpts() ThrottlingRoundTripperOpts {
	return ThrottlingRoundTripperOpts{
		IncludedHosts: c.IncludedHosts,
		ExcludedHosts: c.ExcludedHosts,
	}
}

// Config represents options for HTTP client configuration.
type Config struct {
	// Retries is a configuration for HTTP client retries policy.
	Retries RetriesConfig `mapstructure:"retries" yaml:"retries" json:"retries"`

	// RateLimits is a configuration for HTTP client rate limits.
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`

	// Log is a configuration for HTTP client logs.
	Log LoggerConfig `mapstructure:"logger" yaml:"logger" json:"logger"`

	// Metrics is a configuration for HTTP client metrics.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// TransportCache is a configuration for the per-scheme transport cache.
	TransportCache TransportCacheConfig `mapstructure:"transportCache" yaml:"transportCache" json:"transportCache"`

	// Throttling is a configuration for per-host throttling of outgoing requests.
	Throttling ThrottlingConfig `mapstructure:"throttling" yaml:"throttling" json:"throttling"`

	// Timeout is the maximum time to wait for a request to be made.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Timeout, err = dp.GetDuration(keyTimeout); err != nil {
		return err
	}
	for _, section := range c.sections() {
		if err := section.Set(dp); err != nil {
			return err
		}
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(keyTimeout, DefaultClientWaitTimeout)
	for _, section := range c.sections() {
		section.SetProviderDefaults(dp)
	}
}

func (c *Config) sections() []config.Config {
	return []config.Config{
		&c.Retries, &c.RateLimits, &c.Log, &c.Metrics, &c.TransportCache, &c.Throttling,
	}
}
