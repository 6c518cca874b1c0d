/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/velumlabs/go-basekit/ratelimit"
)

// RateLimitedLogger is a logger that bounds the rate of emitted log events
// using a ratelimit.EventLimiter. Use it to keep a misbehaving or overly
// chatty component from flooding the log output.
//
// Events denied by the limiter are counted per logger name. Instead of
// silently dropping them, the logger may emit a synthetic warning carrying
// the number of suppressed events; the warnings themselves are throttled
// (at most one per name per warning interval) and bypass the limiter.
// Additionally, an aggregated suppression summary is emitted opportunistically:
// no background goroutine is involved, the check piggybacks on allowed events.
//
// When the limiter is configured with an overflow queue, denied events are
// buffered instead and can be replayed later with FlushBuffered.
//
// Loggers produced by With, WithLevel and Named share the limiter and all
// suppression state with their parent.
type RateLimitedLogger struct {
	delegate FieldLogger
	limiter  *ratelimit.EventLimiter

	// name is the key the limiter accounts events against.
	// Empty name means only the global bucket applies.
	name string

	warnEnabled     bool
	warnInterval    time.Duration
	summaryInterval time.Duration

	state *rateLimitedLoggerState
	now   func() time.Time
}

// RateLimitedLoggerOpts represents options for RateLimitedLogger.
type RateLimitedLoggerOpts struct {
	// Name is the initial logger name (see Named).
	Name string

	// WarningsEnabled turns on synthetic "log rate limit exceeded" warnings.
	WarningsEnabled bool

	// WarningInterval throttles the synthetic warnings.
	// ratelimit.DefaultWarningInterval is used if not positive.
	WarningInterval time.Duration

	// SummaryInterval is how often an aggregated suppression summary may be emitted.
	// ratelimit.DefaultSummaryInterval is used if not positive.
	SummaryInterval time.Duration
}

type rateLimitedLoggerState struct {
	mu sync.Mutex

	// suppressed counts denied events per name since the last warning.
	suppressed map[string]int64

	// totalSuppressed counts denied events per name since the last summary.
	totalSuppressed map[string]int64

	lastWarning map[string]time.Time
	lastSummary time.Time
}

// NewRateLimitedLogger returns a new logger that passes events through
// the passed limiter before delegating them to l.
func NewRateLimitedLogger(l FieldLogger, limiter *ratelimit.EventLimiter, opts RateLimitedLoggerOpts) *RateLimitedLogger {
	if opts.WarningInterval <= 0 {
		opts.WarningInterval = ratelimit.DefaultWarningInterval
	}
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = ratelimit.DefaultSummaryInterval
	}
	return &RateLimitedLogger{
		delegate:        l,
		limiter:         limiter,
		name:            opts.Name,
		warnEnabled:     opts.WarningsEnabled,
		warnInterval:    opts.WarningInterval,
		summaryInterval: opts.SummaryInterval,
		state: &rateLimitedLoggerState{
			suppressed:      make(map[string]int64),
			totalSuppressed: make(map[string]int64),
			lastWarning:     make(map[string]time.Time),
		},
		now: time.Now,
	}
}

// Limiter returns the underlying event limiter, e.g. for exporting its Stats.
func (l *RateLimitedLogger) Limiter() *ratelimit.EventLimiter {
	return l.limiter
}

// Named returns a new logger with the given name.
// The name is used as the limiter key, so loggers with different names
// are throttled independently (given per-key limits are configured);
// it is also attached to all delegated events as the "logger" field.
func (l *RateLimitedLogger) Named(name string) *RateLimitedLogger {
	copied := *l
	copied.name = name
	copied.delegate = l.delegate.With(String("logger", name))
	return &copied
}

// With returns a new logger with the given additional fields.
func (l *RateLimitedLogger) With(fs ...Field) FieldLogger {
	copied := *l
	copied.delegate = l.delegate.With(fs...)
	return &copied
}

// Debug logs a message at "debug" level if the limiter allows it.
func (l *RateLimitedLogger) Debug(text string, fs ...Field) {
	l.log(LevelDebug, l.delegate.Debug, text, fs)
}

// Info logs a message at "info" level if the limiter allows it.
func (l *RateLimitedLogger) Info(text string, fs ...Field) {
	l.log(LevelInfo, l.delegate.Info, text, fs)
}

// Warn logs a message at "warn" level if the limiter allows it.
func (l *RateLimitedLogger) Warn(text string, fs ...Field) {
	l.log(LevelWarn, l.delegate.Warn, text, fs)
}

// Error logs a message at "error" level if the limiter allows it.
func (l *RateLimitedLogger) Error(text string, fs ...Field) {
	l.log(LevelError, l.delegate.Error, text, fs)
}

// Debugf logs a formatted message at "debug" level if the limiter allows it.
func (l *RateLimitedLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at "info" level if the limiter allows it.
func (l *RateLimitedLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at "warn" level if the limiter allows it.
func (l *RateLimitedLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at "error" level if the limiter allows it.
func (l *RateLimitedLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel invokes fn only when the level is enabled; every message written
// through the handed-in LogFunc goes past the limiter like a direct call.
func (l *RateLimitedLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.delegate.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			l.log(level, func(text string, fields ...Field) {
				logFunc(text, fields...)
			}, msg, fs)
		})
	})
}

// WithLevel returns a logger with an extra level check on top of the
// configured one. The check only ever tightens (see LogfAdapter.WithLevel);
// both loggers share the limiter.
func (l *RateLimitedLogger) WithLevel(level Level) FieldLogger {
	copied := *l
	copied.delegate = l.delegate.WithLevel(level)
	return &copied
}

// FlushBuffered replays up to max buffered events (max <= 0 replays all)
// through the delegate at their original levels, in FIFO order.
// It returns the number of replayed events. Replayed events bypass the
// limiter; each carries the "replayed" marker and its original timestamp.
func (l *RateLimitedLogger) FlushBuffered(max int) int {
	events := l.limiter.DrainBuffered(max)
	for _, ev := range events {
		fields := []Field{Bool("replayed", true), Time("original_time", ev.Time)}
		if ev.Key != "" {
			fields = append(fields, String("logger", ev.Key))
		}
		switch Level(ev.Severity) {
		case LevelDebug:
			l.delegate.Debug(ev.Text, fields...)
		case LevelWarn:
			l.delegate.Warn(ev.Text, fields...)
		case LevelError:
			l.delegate.Error(ev.Text, fields...)
		default:
			l.delegate.Info(ev.Text, fields...)
		}
	}
	return len(events)
}

func (l *RateLimitedLogger) log(level Level, emit func(string, ...Field), text string, fs []Field) {
	ev := ratelimit.Event{Key: l.name, Severity: string(level), Text: text, Time: l.now()}
	switch l.limiter.CheckEvent(ev, 1) {
	case ratelimit.DecisionAllowed:
		emit(text, fs...)
		l.maybeLogSummary()
	case ratelimit.DecisionDenied:
		l.onDenied()
	case ratelimit.DecisionBuffered:
		// Queued inside the limiter, nothing to emit now.
	}
}

func (l *RateLimitedLogger) onDenied() {
	now := l.now()

	var emitWarning bool
	var suppressed int64
	s := l.state
	s.mu.Lock()
	s.suppressed[l.name]++
	s.totalSuppressed[l.name]++
	if l.warnEnabled {
		last, warnedBefore := s.lastWarning[l.name]
		if !warnedBefore || now.Sub(last) >= l.warnInterval {
			emitWarning = true
			suppressed = s.suppressed[l.name]
			s.suppressed[l.name] = 0
			s.lastWarning[l.name] = now
		}
	}
	s.mu.Unlock()

	if emitWarning {
		// The warning goes straight to the delegate, it must not be suppressed itself.
		l.delegate.Warn("log rate limit exceeded",
			Bool("rate_limit_warning", true),
			Int64("suppressed_count", suppressed))
	}
}

// maybeLogSummary emits an aggregated suppression summary if the summary
// interval has elapsed and anything was suppressed since the last one.
// The accumulated state is cleared and the interval is restarted before
// the delegate is called, so a panicking delegate cannot cause the same
// summary to be emitted twice.
func (l *RateLimitedLogger) maybeLogSummary() {
	now := l.now()

	s := l.state
	s.mu.Lock()
	if s.lastSummary.IsZero() {
		s.lastSummary = now
		s.mu.Unlock()
		return
	}
	if now.Sub(s.lastSummary) < l.summaryInterval {
		s.mu.Unlock()
		return
	}
	s.lastSummary = now
	if len(s.totalSuppressed) == 0 {
		s.mu.Unlock()
		return
	}
	var total int64
	for _, n := range s.totalSuppressed {
		total += n
	}
	counts := s.totalSuppressed
	s.totalSuppressed = make(map[string]int64)
	s.mu.Unlock()

	defer func() {
		_ = recover()
	}()
	l.delegate.Warn("log rate limit summary",
		Bool("rate_limit_summary", true),
		Int64("suppressed_total", total),
		Int("loggers_affected", len(counts)),
		Any("suppressed_counts", counts))
}
