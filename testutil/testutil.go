/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

// Package testutil provides assertion helpers shared by the library's tests.
package testutil

type tHelper interface {
	Helper()
}
