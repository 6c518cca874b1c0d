/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/velumlabs/go-basekit/ratelimit"
)

// Field is a single key/value pair attached to a record.
type Field = logf.Field

// CloseFunc flushes and stops the logger's channel writer.
type CloseFunc logf.ChannelWriterCloseFunc

// LogFunc writes a message at a level bound in advance.
// nolint: revive
type LogFunc = logf.LogFunc

// Field constructors, re-exported so that callers build fields through this
// package and never import logf directly. Error uses the key "error";
// NamedError takes an explicit key. Any picks the best representation for an
// arbitrary value.
var (
	Error      = logf.Error
	NamedError = logf.NamedError
	String     = logf.String
	Strings    = logf.Strings
	Bytes      = logf.Bytes
	Int        = logf.Int
	Int32      = logf.Int32
	Int64      = logf.Int64
	Uint32     = logf.Uint32
	Uint64     = logf.Uint64
	Float64    = logf.Float64
	Duration   = logf.Duration
	Bool       = logf.Bool
	Time       = logf.Time
	Any        = logf.Any
)

// DurationIn returns a Field keyed "duration" holding val expressed in the
// given unit as an int64.
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", val.Nanoseconds()/unit.Nanoseconds())
}

// FieldLogger writes structured records at the four severity levels.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}

// LogfAdapter implements FieldLogger on top of a logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

// NewDisabledLogger returns a logger that discards everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger returns a new logger built from the passed configuration.
// Depending on the configuration, the returned logger may be wrapped with
// masking (secrets are not leaked into logs) and with rate limiting
// (a misbehaving component cannot flood the log output).
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg),
		EnableSyncOnError: true,
	})
	base := logf.NewLogger(logfLevel(cfg.Level), channel).
		With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// skip one stackframe so the caller is reported
		// at the call site rather than inside this package
		base = base.WithCaller().WithCallerSkip(1)
	}
	var logger FieldLogger = &LogfAdapter{base}

	if cfg.Masking.Enabled {
		rules := make([]MaskingRuleConfig, 0, len(cfg.Masking.Rules)+len(DefaultMasks))
		rules = append(rules, cfg.Masking.Rules...)
		if cfg.Masking.UseDefaultRules {
			rules = append(rules, DefaultMasks...)
		}
		logger = NewMaskingLogger(logger, NewMasker(rules))
	}

	if cfg.RateLimiting.Enabled {
		limiter := ratelimit.MustEventLimiter(cfg.RateLimiting.Options())
		logger = NewRateLimitedLogger(logger, limiter, RateLimitedLoggerOpts{
			WarningsEnabled: cfg.RateLimiting.Warning.Enabled,
			WarningInterval: time.Duration(cfg.RateLimiting.Warning.Interval),
			SummaryInterval: time.Duration(cfg.RateLimiting.Warning.SummaryInterval),
		})
	}
	return logger, CloseFunc(closeFunc)
}

// With returns a logger that attaches the fields to every record.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// Debug writes a record at "debug" level.
func (l *LogfAdapter) Debug(s string, fields ...Field) {
	l.Logger.Debug(s, fields...)
}

// Info writes a record at "info" level.
func (l *LogfAdapter) Info(s string, fields ...Field) {
	l.Logger.Info(s, fields...)
}

// Warn writes a record at "warn" level.
func (l *LogfAdapter) Warn(s string, fields ...Field) {
	l.Logger.Warn(s, fields...)
}

// Error writes a record at "error" level.
func (l *LogfAdapter) Error(s string, fields ...Field) {
	l.Logger.Error(s, fields...)
}

// Debugf formats and writes a record at "debug" level.
func (l *LogfAdapter) Debugf(format string, args ...interface{}) {
	l.formatAtLevel(LevelDebug, format, args)
}

// Infof formats and writes a record at "info" level.
func (l *LogfAdapter) Infof(format string, args ...interface{}) {
	l.formatAtLevel(LevelInfo, format, args)
}

// Warnf formats and writes a record at "warn" level.
func (l *LogfAdapter) Warnf(format string, args ...interface{}) {
	l.formatAtLevel(LevelWarn, format, args)
}

// Errorf formats and writes a record at "error" level.
func (l *LogfAdapter) Errorf(format string, args ...interface{}) {
	l.formatAtLevel(LevelError, format, args)
}

// formatAtLevel defers fmt.Sprintf until the level is known to be enabled.
func (l *LogfAdapter) formatAtLevel(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(write LogFunc) {
		write(fmt.Sprintf(format, args...))
	})
}

// AtLevel invokes fn only when the level is enabled, handing it a LogFunc
// bound to that level.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(logfLevel(level), fn)
}

// WithLevel returns a new logger with an additional level check on top of
// the already configured one. The check only ever tightens: messages below
// either level are dropped, so the effective level cannot be lowered back.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(logfLevel(level))}
}

func logfLevel(value Level) logf.Level {
	switch value {
	case LevelDebug:
		return logf.LevelDebug
	case LevelWarn:
		return logf.LevelWarn
	case LevelError:
		return logf.LevelError
	case LevelInfo:
		return logf.LevelInfo
	default:
		return logf.LevelInfo
	}
}

func newAppender(cfg *Config) logf.Appender {
	var w io.Writer
	switch cfg.Output {
	case OutputFile:
		w = &lumberjack.Logger{
			Filename:   expandPathTokens(cfg.File.Path),
			MaxSize:    int(cfg.File.Rotation.MaxSize / 1024 / 1024), // lumberjack counts megabytes
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			MaxBackups: cfg.File.Rotation.MaxBackups,
			LocalTime:  cfg.File.Rotation.LocalTimeInNames,
			Compress:   cfg.File.Rotation.Compress,
		}
	case OutputStderr:
		w = os.Stderr
	default:
		w = os.Stdout
	}

	var errorEncoder logf.ErrorEncoder
	if cfg.Error.VerboseSuffix != "" || cfg.Error.NoVerbose {
		errorEncoder = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}

	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: errorEncoder,
			NoColor:     &noColor,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  errorEncoder,
	}))
}

// expandPathTokens substitutes {{starttime}} and {{pid}} in a log file path,
// so several instances of one binary can log side by side.
func expandPathTokens(filePath string) string {
	res := strings.ReplaceAll(filePath, "{{starttime}}", time.Now().Format("200601021504"))
	return strings.ReplaceAll(res, "{{pid}}", strconv.Itoa(os.Getpid()))
}
