/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package lrucache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives cache usage signals: size changes, lookup
// outcomes and evictions.
type MetricsCollector interface {
	// SetAmount reports the current number of entries in the cache.
	SetAmount(int)

	// IncHits counts a lookup that found its key.
	IncHits()

	// IncMisses counts a lookup that did not find its key.
	IncMisses()

	// AddEvictions counts entries pushed out by the capacity limit.
	AddEvictions(int)
}

var disabledMetricsCollector = disabledMetrics{}

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}

// PrometheusMetricsOpts configures PrometheusMetrics construction.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to every metric name.
	Namespace string

	// ConstLabels are attached to every metric.
	ConstLabels prometheus.Labels

	// CurriedLabelNames declares label names to be filled in later through
	// MustCurryWith. When non-empty, MustCurryWith must be called with values
	// for exactly these labels before the collector is used, otherwise it
	// panics.
	CurriedLabelNames []string
}

// PrometheusMetrics exports cache usage as Prometheus metrics.
type PrometheusMetrics struct {
	EntriesAmount  *prometheus.GaugeVec
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	EvictionsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames)
	}
	entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "cache_entries_amount",
		Help:        "Number of entries currently stored in the cache.",
		ConstLabels: opts.ConstLabels,
	}, opts.CurriedLabelNames)
	return &PrometheusMetrics{
		EntriesAmount:  entries,
		HitsTotal:      counter("cache_hits_total", "Number of lookups that found their key."),
		MissesTotal:    counter("cache_misses_total", "Number of lookups that did not find their key."),
		EvictionsTotal: counter("cache_evictions_total", "Number of entries evicted by the capacity limit."),
	}
}

// MustCurryWith fixes the values of the labels declared in CurriedLabelNames
// and returns a collector bound to them.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EntriesAmount:  pm.EntriesAmount.MustCurryWith(labels),
		HitsTotal:      pm.HitsTotal.MustCurryWith(labels),
		MissesTotal:    pm.MissesTotal.MustCurryWith(labels),
		EvictionsTotal: pm.EvictionsTotal.MustCurryWith(labels),
	}
}

// MustRegister registers all metrics in the default Prometheus registry and
// panics on registration errors.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal)
}

// Unregister removes all metrics from the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal} {
		prometheus.Unregister(c)
	}
}

// SetAmount reports the current number of entries in the cache.
func (pm *PrometheusMetrics) SetAmount(amount int) {
	pm.EntriesAmount.With(nil).Set(float64(amount))
}

// IncHits counts a lookup that found its key.
func (pm *PrometheusMetrics) IncHits() {
	pm.HitsTotal.With(nil).Inc()
}

// IncMisses counts a lookup that did not find its key.
func (pm *PrometheusMetrics) IncMisses() {
	pm.MissesTotal.With(nil).Inc()
}

// AddEvictions counts entries pushed out by the capacity limit.
func (pm *PrometheusMetrics) AddEvictions(n int) {
	pm.EvictionsTotal.With(nil).Add(float64(n))
}
