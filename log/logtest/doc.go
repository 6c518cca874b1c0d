/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

// Package logtest provides log.FieldLogger implementations for tests: a
// recorder that captures entries for inspection, and a simple synchronous
// logger. It plays the same role for logging that net/http/httptest plays
// for HTTP handlers.
package logtest
