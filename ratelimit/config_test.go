/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velumlabs/go-basekit/config"
)

func TestConfigWithDefaults(t *testing.T) {
	cfgData := bytes.NewBuffer([]byte(`
ratelimit:
  enabled: true
  global:
    rate: 100
    burst: 500
`))
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.True(t, cfg.Enabled)
	require.Equal(t, float64(100), cfg.Global.Rate)
	require.Equal(t, float64(500), cfg.Global.Burst)
	require.Empty(t, cfg.PerKey)
	require.Equal(t, 0, cfg.Queue.Size)
	require.Equal(t, OverflowPolicyDropNewest, cfg.Queue.OverflowPolicy)
	require.Equal(t, DefaultOverflowBlockTimeout, time.Duration(cfg.Queue.BlockTimeout))
	require.False(t, cfg.Warning.Enabled)
	require.Equal(t, DefaultWarningInterval, time.Duration(cfg.Warning.Interval))
	require.Equal(t, DefaultSummaryInterval, time.Duration(cfg.Warning.SummaryInterval))
}

func TestConfigFull(t *testing.T) {
	cfgData := bytes.NewBuffer([]byte(`
ratelimit:
  enabled: true
  global:
    rate: 10.5
    burst: 100
  perKey:
    auth-service:
      rate: 1
      burst: 5
    billing:
      rate: 0.5
      burst: 2
  queue:
    size: 1000
    maxMemory: 16M
    overflowPolicy: drop_oldest
    blockTimeout: 2s
  warning:
    enabled: true
    interval: 10s
    summaryInterval: 45s
`))
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, float64(10.5), cfg.Global.Rate)
	require.Equal(t, map[string]BucketLimitConfig{
		"auth-service": {Rate: 1, Burst: 5},
		"billing":      {Rate: 0.5, Burst: 2},
	}, cfg.PerKey)
	require.Equal(t, 1000, cfg.Queue.Size)
	require.Equal(t, config.ByteSize(16*1024*1024), cfg.Queue.MaxMemory)
	require.Equal(t, OverflowPolicyDropOldest, cfg.Queue.OverflowPolicy)
	require.Equal(t, 2*time.Second, time.Duration(cfg.Queue.BlockTimeout))
	require.True(t, cfg.Warning.Enabled)
	require.Equal(t, 10*time.Second, time.Duration(cfg.Warning.Interval))
	require.Equal(t, 45*time.Second, time.Duration(cfg.Warning.SummaryInterval))

	opts := cfg.Options()
	require.NotNil(t, opts.GlobalLimit)
	require.Equal(t, BucketLimit{Rate: 10.5, Burst: 100}, *opts.GlobalLimit)
	require.Equal(t, BucketLimit{Rate: 1, Burst: 5}, opts.PerKeyLimits["auth-service"])
	require.Equal(t, 1000, opts.MaxQueueSize)
	require.Equal(t, uint64(16*1024*1024), opts.MaxQueueMemory)
	require.Equal(t, OverflowPolicyDropOldest, opts.OverflowPolicy)
	require.Equal(t, 2*time.Second, opts.BlockTimeout)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name: "negative global rate",
			cfgData: `
ratelimit:
  global:
    rate: -1
`,
			wantErr: "must not be negative",
		},
		{
			name: "negative queue size",
			cfgData: `
ratelimit:
  queue:
    size: -5
`,
			wantErr: "must not be negative",
		},
		{
			name: "unknown overflow policy",
			cfgData: `
ratelimit:
  queue:
    overflowPolicy: panic
`,
			wantErr: "unknown value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigKeyPrefix(t *testing.T) {
	cfgData := bytes.NewBuffer([]byte(`
log:
  ratelimiting:
    enabled: true
    global:
      rate: 3
      burst: 9
`))
	cfg := NewConfig(WithKeyPrefix("log.ratelimiting"))
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.True(t, cfg.Enabled)
	require.Equal(t, float64(3), cfg.Global.Rate)
	require.Equal(t, float64(9), cfg.Global.Burst)
}

func TestConfigDisabledOptions(t *testing.T) {
	cfg := NewConfig()
	opts := cfg.Options()
	require.Nil(t, opts.GlobalLimit)
	require.Nil(t, opts.PerKeyLimits)
	require.Equal(t, 0, opts.MaxQueueSize)
}
