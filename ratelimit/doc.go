/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

// Package ratelimit provides rate limiting primitives used across the library.
//
// Two families of limiters live here:
//
//   - EventLimiter — a token-bucket limiter composing an optional global
//     bucket with independent per-key buckets. It is consulted by the
//     rate-limited logger (see the log package) on every log event and
//     supports an optional bounded overflow queue that buffers denied
//     events instead of dropping them outright.
//
//   - KeyLimiter — keyed request limiters (GCRA leaky bucket, sliding
//     window) used by the HTTP client for per-host throttling.
//
// All limiters are safe for concurrent use. EventLimiter instances are
// constructed explicitly and passed where needed; there is no hidden
// process-wide state.
package ratelimit
