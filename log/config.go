/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/velumlabs/go-basekit/config"
	"github.com/velumlabs/go-basekit/ratelimit"
)

// Level defines possible values for log levels.
type Level string

// Logging levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format defines possible values for log formats.
type Format string

// Logging formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output defines possible values for log outputs.
type Output string

// Logging outputs.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

// FieldMaskFormat defines possible values for field mask formats.
type FieldMaskFormat string

// Field mask formats.
const (
	FieldMaskFormatHTTPHeader FieldMaskFormat = "http_header"
	FieldMaskFormatJSON       FieldMaskFormat = "json"
	FieldMaskFormatURLEncoded FieldMaskFormat = "urlencoded"
)

var (
	levelNames  = []string{string(LevelError), string(LevelWarn), string(LevelInfo), string(LevelDebug)}
	formatNames = []string{string(FormatJSON), string(FormatText)}
	outputNames = []string{string(OutputStdout), string(OutputStderr), string(OutputFile)}
)

const defaultKeyPrefix = "log"

const (
	keyLevel         = "level"
	keyFormat        = "format"
	keyOutput        = "output"
	keyNoColor       = "nocolor"
	keyAddCaller     = "addCaller"
	keyRateLimiting  = "ratelimiting"
	keyErrNoVerbose  = "error.noVerbose"
	keyErrVerboseSfx = "error.verboseSuffix"

	keyFilePath              = "file.path"
	keyFileRotationCompress  = "file.rotation.compress"
	keyFileRotationMaxSize   = "file.rotation.maxSize"
	keyFileRotationBackups   = "file.rotation.maxBackups"
	keyFileRotationAgeDays   = "file.rotation.maxAgeDays"
	keyFileRotationLocalTime = "file.rotation.localTimeInNames"

	keyMaskingEnabled  = "masking.enabled"
	keyMaskingDefaults = "masking.useDefaultRules"
	keyMaskingRules    = "masking.rules"
)

// Default and restriction values.
const (
	DefaultFileRotationMaxSizeBytes = 1024 * 1024 * 250
	MinFileRotationMaxSizeBytes     = 1024 * 1024

	DefaultFileRotationMaxBackups = 10
	MinFileRotationMaxBackups     = 1

	defaultErrorVerboseSuffix = "_verbose"
)

// FileOutputConfig is a configuration for file log output.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig is a configuration for file log rotation.
type FileRotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig is a configuration for logging errors.
type ErrorConfig struct {
	// NoVerbose suppresses the verbose error representation entirely. When it
	// is false and the logged error implements fmt.Formatter, the verbose text
	// is emitted as an extra field keyed "error" + VerboseSuffix (unless it
	// matches the plain err.Error() text, which would only duplicate it).
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

// MaskingConfig is a configuration for log field masking.
type MaskingConfig struct {
	Enabled         bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	UseDefaultRules bool                `mapstructure:"useDefaultRules" yaml:"useDefaultRules" json:"useDefaultRules"`
	Rules           []MaskingRuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`
}

// MaskingRuleConfig is a configuration for a single masking rule.
type MaskingRuleConfig struct {
	Field   string            `mapstructure:"field" yaml:"field" json:"field"`
	Formats []FieldMaskFormat `mapstructure:"formats" yaml:"formats" json:"formats"`
	Masks   []MaskConfig      `mapstructure:"masks" yaml:"masks" json:"masks"`
}

// MaskConfig is a configuration for a single mask.
type MaskConfig struct {
	RegExp string `mapstructure:"regexp" yaml:"regexp" json:"regexp"`
	Mask   string `mapstructure:"mask" yaml:"mask" json:"mask"`
}

// Config holds the logging configuration. It can be populated through
// config.Loader as well as directly with json.Unmarshal or yaml.Unmarshal.
type Config struct {
	Level   Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format  Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output  Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor bool             `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`

	Error ErrorConfig `mapstructure:"error" yaml:"error" json:"error"`

	// AddCaller adds the calling site (package/file:line) to every message.
	AddCaller bool `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`

	Masking MaskingConfig `mapstructure:"masking" yaml:"masking" json:"masking"`

	// RateLimiting bounds the rate of emitted log events
	// (see ratelimit.Config for the full set of knobs).
	RateLimiting ratelimit.Config `mapstructure:"ratelimiting" yaml:"ratelimiting" json:"ratelimiting"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption overriding the section under which
// config.Loader looks the parameters up.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

func applyConfigOptions(options []ConfigOption) configOptions {
	opts := configOptions{keyPrefix: defaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	return &Config{keyPrefix: applyConfigOptions(options).keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	return &Config{
		keyPrefix: applyConfigOptions(options).keyPrefix,
		Level:     LevelInfo,
		Format:    FormatJSON,
		Output:    OutputStdout,
		File: FileOutputConfig{
			Rotation: FileRotationConfig{
				MaxSize:    DefaultFileRotationMaxSizeBytes,
				MaxBackups: DefaultFileRotationMaxBackups,
			},
		},
		Error: ErrorConfig{
			VerboseSuffix: defaultErrorVerboseSuffix,
		},
		Masking: MaskingConfig{
			UseDefaultRules: true,
		},
		RateLimiting: ratelimit.Config{
			Queue: ratelimit.QueueConfig{
				OverflowPolicy: ratelimit.OverflowPolicyDropNewest,
				BlockTimeout:   config.TimeDuration(ratelimit.DefaultOverflowBlockTimeout),
			},
			Warning: ratelimit.WarningConfig{
				Interval:        config.TimeDuration(ratelimit.DefaultWarningInterval),
				SummaryInterval: config.TimeDuration(ratelimit.DefaultSummaryInterval),
			},
		},
	}
}

// KeyPrefix returns the section under which all parameters live.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return defaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for logger in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(keyLevel, string(LevelInfo))
	dp.SetDefault(keyFormat, string(FormatJSON))
	dp.SetDefault(keyOutput, string(OutputStdout))
	dp.SetDefault(keyErrVerboseSfx, defaultErrorVerboseSuffix)
	dp.SetDefault(keyFileRotationMaxSize, bytefmt.ByteSize(DefaultFileRotationMaxSizeBytes))
	dp.SetDefault(keyFileRotationBackups, DefaultFileRotationMaxBackups)
	dp.SetDefault(keyMaskingDefaults, true)
	c.RateLimiting.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, keyRateLimiting))
}

// Set sets logger configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	level, err := dp.GetStringFromSet(keyLevel, levelNames, true)
	if err != nil {
		return err
	}
	c.Level = Level(strings.ToLower(level))

	format, err := dp.GetStringFromSet(keyFormat, formatNames, true)
	if err != nil {
		return err
	}
	c.Format = Format(strings.ToLower(format))

	output, err := dp.GetStringFromSet(keyOutput, outputNames, true)
	if err != nil {
		return err
	}
	c.Output = Output(strings.ToLower(output))

	if c.AddCaller, err = dp.GetBool(keyAddCaller); err != nil {
		return err
	}
	if c.NoColor, err = dp.GetBool(keyNoColor); err != nil {
		return err
	}
	if c.Error.NoVerbose, err = dp.GetBool(keyErrNoVerbose); err != nil {
		return err
	}
	if c.Error.VerboseSuffix, err = dp.GetString(keyErrVerboseSfx); err != nil {
		return err
	}

	if err = c.readFileOutput(dp); err != nil {
		return err
	}
	if err = c.readMasking(dp); err != nil {
		return err
	}
	return c.RateLimiting.Set(config.NewKeyPrefixedDataProvider(dp, keyRateLimiting))
}

func (c *Config) readFileOutput(dp config.DataProvider) error {
	var err error

	if c.File.Path, err = dp.GetString(keyFilePath); err != nil {
		return err
	}
	if c.File.Path == "" && c.Output == OutputFile {
		return dp.WrapKeyErr(keyFilePath,
			fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	if c.File.Rotation.Compress, err = dp.GetBool(keyFileRotationCompress); err != nil {
		return err
	}
	if c.File.Rotation.LocalTimeInNames, err = dp.GetBool(keyFileRotationLocalTime); err != nil {
		return err
	}

	maxSize, err := dp.GetSizeInBytes(keyFileRotationMaxSize)
	if err != nil {
		return err
	}
	if maxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(keyFileRotationMaxSize,
			fmt.Errorf("should be >= %s", bytefmt.ByteSize(MinFileRotationMaxSizeBytes)))
	}
	c.File.Rotation.MaxSize = config.ByteSize(maxSize)

	if c.File.Rotation.MaxBackups, err = dp.GetInt(keyFileRotationBackups); err != nil {
		return err
	}
	if c.File.Rotation.MaxBackups < MinFileRotationMaxBackups {
		return dp.WrapKeyErr(keyFileRotationBackups,
			fmt.Errorf("should be >= %d", MinFileRotationMaxBackups))
	}

	if c.File.Rotation.MaxAgeDays, err = dp.GetInt(keyFileRotationAgeDays); err != nil {
		return err
	}
	if c.File.Rotation.MaxAgeDays < 0 {
		return dp.WrapKeyErr(keyFileRotationAgeDays, fmt.Errorf("should be >= 0"))
	}

	return nil
}

func (c *Config) readMasking(dp config.DataProvider) error {
	var err error
	if c.Masking.Enabled, err = dp.GetBool(keyMaskingEnabled); err != nil {
		return err
	}
	if c.Masking.UseDefaultRules, err = dp.GetBool(keyMaskingDefaults); err != nil {
		return err
	}
	return dp.UnmarshalKey(keyMaskingRules, &c.Masking.Rules)
}
