// Package metrics defines the Prometheus metrics exported by the
// logtest service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_logtest_sessions_opened_total",
			Help: "Total number of logtest sessions opened",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_logtest_sessions_closed_total",
			Help: "Total number of logtest sessions closed",
		},
		[]string{"reason"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_logtest_active_sessions",
			Help: "Number of currently open logtest sessions",
		},
	)

	RequestsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_logtest_requests_total",
			Help: "Total number of analysis requests by outcome",
		},
		[]string{"outcome"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_logtest_processing_duration_seconds",
			Help:    "Time taken to decode and match one log line",
			Buckets: prometheus.DefBuckets,
		},
	)

	RulePatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_logtest_rule_patches_total",
			Help: "Total number of session rule patches applied",
		},
	)

	RulesetGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_logtest_ruleset_generation",
			Help: "Version of the currently published ruleset generation",
		},
	)
)

// Request outcome label values.
const (
	OutcomeMatched   = "matched"
	OutcomeNoRule    = "no_rule"
	OutcomeNoDecoder = "no_decoder"
	OutcomeError     = "error"
)
