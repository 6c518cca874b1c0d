/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureOutput builds a logger from cfg with its output redirected through a
// pipe, runs fn with it, and returns everything the logger wrote.
func captureOutput(t *testing.T, cfg *Config, fn func(FieldLogger)) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	var target **os.File
	if cfg.Output == OutputStderr {
		target = &os.Stderr
	} else {
		target = &os.Stdout
	}
	orig := *target
	*target = w
	defer func() { *target = orig }()

	go func() {
		logger, closeLogger := NewLogger(cfg)
		fn(logger)
		closeLogger()
		_ = w.Close()
	}()

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestLoggerWritesJSON(t *testing.T) {
	tests := []struct {
		name   string
		output Output
		log    func(FieldLogger)
		level  Level
		msg    string
		err    error
	}{
		{
			name:   "info to stdout",
			output: OutputStdout,
			log:    func(l FieldLogger) { l.Info("cache warmed") },
			level:  LevelInfo,
			msg:    "cache warmed",
		},
		{
			name:   "warn to stdout",
			output: OutputStdout,
			log:    func(l FieldLogger) { l.Warn("disk almost full") },
			level:  LevelWarn,
			msg:    "disk almost full",
		},
		{
			name:   "error with field to stdout",
			output: OutputStdout,
			log:    func(l FieldLogger) { l.Error("request failed", Error(errors.New("connection reset"))) },
			level:  LevelError,
			msg:    "request failed",
			err:    errors.New("connection reset"),
		},
		{
			name:   "info to stderr",
			output: OutputStderr,
			log:    func(l FieldLogger) { l.Info("cache warmed") },
			level:  LevelInfo,
			msg:    "cache warmed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t, &Config{
				Output: tt.output, NoColor: true, Format: FormatJSON, Level: LevelInfo,
				Error: ErrorConfig{VerboseSuffix: "err"},
			}, tt.log)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(out), &entry))
			require.Equal(t, string(tt.level), entry["level"])
			require.Equal(t, tt.msg, entry["msg"])
			if tt.err != nil {
				require.Equal(t, tt.err.Error(), entry["error"])
			}
			require.Equal(t, os.Getpid(), int(entry["pid"].(float64)))
		})
	}
}

func TestLoggerWritesText(t *testing.T) {
	out := captureOutput(t, &Config{
		Output: OutputStderr, NoColor: true, Format: FormatText, Level: LevelInfo,
		Error: ErrorConfig{VerboseSuffix: "err"},
	}, func(l FieldLogger) {
		l.AtLevel(LevelError, func(write LogFunc) {
			write("request failed", Error(errors.New("connection reset")))
		})
	})

	require.Contains(t, out, `|ERRO|`)
	require.Contains(t, out, ` request failed `)
	require.Contains(t, out, `error="connection reset"`)
	require.Contains(t, out, fmt.Sprintf(`pid=%d`, os.Getpid()))
}

func TestNewLoggerAppliesMasking(t *testing.T) {
	logger, closeLogger := NewLogger(&Config{
		Masking: MaskingConfig{
			Enabled: true, UseDefaultRules: true, Rules: []MaskingRuleConfig{
				{
					Field: "license_key",
					Masks: []MaskConfig{{RegExp: "<license>.+?</license>", Mask: "<license>***</license>"}},
				},
			},
		},
	})
	defer closeLogger()

	mLogger, ok := logger.(MaskingLogger)
	require.True(t, ok, "masking must be the outermost wrapper")
	require.IsType(t, &LogfAdapter{}, mLogger.log)

	// Both the custom rule and the default rules should be in effect.
	require.Equal(t, "key is <license>***</license>",
		mLogger.masker.Mask("key is <license>abc-123</license>"))
	require.Equal(t, `{"password": "***"}`,
		mLogger.masker.Mask(`{"password": "hunter2"}`))
}

func TestNewLoggerAppliesRateLimiting(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.Global.Rate = 1000
	logger, closeLogger := NewLogger(cfg)
	defer closeLogger()

	rlLogger, ok := logger.(*RateLimitedLogger)
	require.True(t, ok)
	require.NotNil(t, rlLogger.Limiter())
	require.GreaterOrEqual(t, rlLogger.Limiter().Stats().Global.CurrentTokens, float64(0))
}
