/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextRequestValues(t *testing.T) {
	background := context.Background()

	t.Run("missing values read as empty strings", func(t *testing.T) {
		require.Empty(t, GetRequestTypeFromContext(background))
		require.Empty(t, GetRequestIDFromContext(background))
	})

	t.Run("request type round-trips", func(t *testing.T) {
		ctx := NewContextWithRequestType(background, "invoice-export")
		require.Equal(t, "invoice-export", GetRequestTypeFromContext(ctx))
		require.Empty(t, GetRequestIDFromContext(ctx), "the request ID key stays untouched")
	})

	t.Run("request id round-trips", func(t *testing.T) {
		ctx := NewContextWithRequestID(background, "req-91acf004")
		require.Equal(t, "req-91acf004", GetRequestIDFromContext(ctx))
		require.Empty(t, GetRequestTypeFromContext(ctx), "the request type key stays untouched")
	})
}
