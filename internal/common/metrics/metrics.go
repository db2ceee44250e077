// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications dispatched successfully",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notifications marked failed",
		},
		[]string{"channel", "error_code"},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_claim_conflicts_total",
			Help: "Due notifications skipped because another worker claimed them first",
		},
	)

	ClaimsLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_claims_lost_total",
			Help: "Claimed notifications abandoned before dispatch because their lease was taken over",
		},
	)

	StaleClaimsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_stale_claims_reconciled_total",
			Help: "In-progress notifications resolved after their claim lease expired",
		},
		[]string{"outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifications_dispatch_duration_seconds",
			Help:    "Duration of provider dispatch calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	PassesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_passes_active",
			Help: "Number of worker passes currently running",
		},
	)
)
