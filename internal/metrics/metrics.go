// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion outcomes.
const (
	OutcomeIdentity  = "identity"
	OutcomeConverted = "converted"
	OutcomeFallback  = "fallback"
)

var (
	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_conversions_total",
		Help: "Currency conversions by outcome (identity, converted, fallback)",
	}, []string{"outcome"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_provider_requests_total",
		Help: "Outbound provider HTTP requests by provider and outcome",
	}, []string{"provider", "outcome"})

	SnapshotUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_snapshot_upserts_total",
		Help: "Balance snapshot upserts by snapshot type",
	}, []string{"type"})

	ForwardFill = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_forward_fill_accounts_total",
		Help: "Accounts processed by the forward-fill sweep, by result",
	}, []string{"result"})

	EventHandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_event_handler_failures_total",
		Help: "Swallowed failures of account-changed event handlers",
	}, []string{"topic", "handler"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_job_runs_total",
		Help: "Recurring job runs by job and outcome",
	}, []string{"job", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finsight_http_request_duration_seconds",
		Help:    "Latency distribution of API requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route", "status"})
)
