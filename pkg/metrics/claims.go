package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClaimMetrics records outcomes and latency of claim resolution.
type ClaimMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewClaimMetrics registers the claim metrics on the provided registerer.
func NewClaimMetrics(reg prometheus.Registerer) *ClaimMetrics {
	if reg == nil {
		return &ClaimMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claim_resolution_seconds",
		Help:    "Duration of claim resolution in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_outcomes_total",
		Help: "Claim attempts partitioned by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, outcomes)
	return &ClaimMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// ObserveResolution records one claim attempt with its outcome label.
func (c *ClaimMetrics) ObserveResolution(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
	c.outcomes.WithLabelValues(label).Inc()
}

// NotificationMetrics counts notification deliveries per transport.
type NotificationMetrics struct {
	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewNotificationMetrics registers the notification metrics on the provided registerer.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_delivered_total",
		Help: "Notifications delivered per transport.",
	}, []string{"transport"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failed_total",
		Help: "Notification delivery failures per transport.",
	}, []string{"transport"})
	reg.MustRegister(delivered, failed)
	return &NotificationMetrics{
		delivered: delivered,
		failed:    failed,
	}
}

// IncDelivered increments the delivered counter for the named transport.
func (n *NotificationMetrics) IncDelivered(transport string) {
	if n == nil || n.delivered == nil {
		return
	}
	n.delivered.WithLabelValues(normalizeLabel(transport)).Inc()
}

// IncFailed increments the failure counter for the named transport.
func (n *NotificationMetrics) IncFailed(transport string) {
	if n == nil || n.failed == nil {
		return
	}
	n.failed.WithLabelValues(normalizeLabel(transport)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
