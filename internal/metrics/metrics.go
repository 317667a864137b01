package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	PaymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Payments recorded, by whether an installment matched",
	}, []string{"schedule_matched"})

	CommissionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commissions_created_total",
		Help: "Commission rows created per level",
	}, []string{"level"})

	DistributionsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_distributions_deferred_total",
		Help: "Distributions deferred because the tenant has no active rule",
	})

	PayoutBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_batches_total",
		Help: "Payout batches created",
	})

	RemindersScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reminders_scheduled_total",
		Help: "Payment reminders scheduled per channel",
	}, []string{"channel"})

	WebhookAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_attempts_total",
		Help: "Webhook delivery attempts by outcome",
	}, []string{"outcome"})

	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog",
		Help: "Unprocessed outbox events at last poll",
	})
)
