// Package metrics defines the Prometheus instruments shared across the
// platform. All collectors are registered on the default registry and
// exposed by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingsTotal counts created appointments by session format.
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_bookings_total",
		Help: "Appointments created, labelled by session format.",
	}, []string{"session_format"})

	// ReconciliationsTotal counts payment webhook reconciliations by outcome.
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_payment_reconciliations_total",
		Help: "Payment reconciliations processed, labelled by outcome.",
	}, []string{"outcome"})

	// WebhookRejectionsTotal counts gateway webhooks rejected before
	// reconciliation (bad signature, malformed payload, duplicates).
	WebhookRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_webhook_rejections_total",
		Help: "Gateway webhooks rejected, labelled by reason.",
	}, []string{"reason"})

	// SweepProcessedTotal counts rows handled by scheduler sweeps.
	SweepProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_sweep_processed_total",
		Help: "Rows processed by scheduler sweeps, labelled by sweep name.",
	}, []string{"sweep"})

	// SweepErrorsTotal counts sweep runs that failed.
	SweepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_sweep_errors_total",
		Help: "Scheduler sweep failures, labelled by sweep name.",
	}, []string{"sweep"})

	// FactsDeliveredTotal counts notification facts handed to the queue.
	FactsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telehealth_facts_delivered_total",
		Help: "Notification facts delivered to the queue, labelled by kind.",
	}, []string{"kind"})

	// HTTPRequestDuration observes request latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telehealth_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
