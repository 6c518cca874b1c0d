/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel fails the test if the buffered channel already holds an error.
// An empty channel passes, the check never blocks.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}

// RequireErrorIsAny fails the test unless errors.Is reports a match
// between err and at least one of the targets.
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	wanted := make([]string, 0, len(targets))
	for _, target := range targets {
		if errors.Is(err, target) {
			return
		}
		wanted = append(wanted, strconv.Quote(target.Error()))
	}
	require.FailNow(t, fmt.Sprintf(
		"At least one target error should be in err chain:\nexpected: [%s]\nin chain: %s",
		strings.Join(wanted, "; "), strings.Join(errorChain(err), "\n\t"),
	), msgAndArgs...)
}

// errorChain unwraps err step by step and returns the quoted message of each link.
func errorChain(err error) []string {
	var chain []string
	for ; err != nil; err = errors.Unwrap(err) {
		chain = append(chain, strconv.Quote(err.Error()))
	}
	return chain
}
