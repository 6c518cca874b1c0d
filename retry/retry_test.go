/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestDoWithRetry(t *testing.T) {
	policy := NewConstantBackoffPolicy(time.Millisecond, 3)

	t.Run("succeeds on the first attempt", func(t *testing.T) {
		var calls int
		err := DoWithRetry(context.Background(), policy, nil, nil, func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		var calls int
		err := DoWithRetry(context.Background(), policy, nil, nil, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		wantErr := errors.New("transient")
		var calls int
		err := DoWithRetry(context.Background(), policy, nil, nil, func(ctx context.Context) error {
			calls++
			return wantErr
		})
		require.ErrorIs(t, err, wantErr)
		require.Equal(t, 4, calls, "initial attempt plus three retries")
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		persistentErr := errors.New("persistent")
		isRetryable := func(err error) bool { return !errors.Is(err, persistentErr) }
		var calls int
		err := DoWithRetry(context.Background(), policy, isRetryable, nil, func(ctx context.Context) error {
			calls++
			return persistentErr
		})
		require.ErrorIs(t, err, persistentErr)
		require.Equal(t, 1, calls)
	})

	t.Run("notify is called on every retry", func(t *testing.T) {
		var notifications int
		notify := func(err error, delay time.Duration) {
			notifications++
		}
		err := DoWithRetry(context.Background(), policy, nil, notify, func(ctx context.Context) error {
			return errors.New("transient")
		})
		require.Error(t, err)
		require.Equal(t, 3, notifications)
	})

	t.Run("canceled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls int
		err := DoWithRetry(ctx, NewConstantBackoffPolicy(time.Minute, 10), nil, nil, func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestExponentialBackoffPolicy(t *testing.T) {
	p := NewExponentialBackoffPolicy(time.Second, 2)
	bf := p.NewBackOff()
	require.NotEqual(t, backoff.Stop, bf.NextBackOff())
	require.NotEqual(t, backoff.Stop, bf.NextBackOff())
	require.Equal(t, backoff.Stop, bf.NextBackOff())

	// Each call builds a fresh backoff with the counter reset.
	require.NotEqual(t, backoff.Stop, p.NewBackOff().NextBackOff())
}

func TestConstantBackoffPolicy(t *testing.T) {
	p := NewConstantBackoffPolicy(2*time.Second, 2)
	bf := p.NewBackOff()
	require.Equal(t, 2*time.Second, bf.NextBackOff())
	require.Equal(t, 2*time.Second, bf.NextBackOff())
	require.Equal(t, backoff.Stop, bf.NextBackOff())

	unlimited := NewConstantBackoffPolicy(time.Second, 0).NewBackOff()
	for i := 0; i < 10; i++ {
		require.Equal(t, time.Second, unlimited.NextBackOff())
	}
}

func TestPolicyFunc(t *testing.T) {
	p := PolicyFunc(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	})
	require.Equal(t, time.Millisecond, p.NewBackOff().NextBackOff())
}
