package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashew_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashew_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashew_webhook_events_total",
			Help: "Total number of gateway webhook events by outcome",
		},
		[]string{"type", "outcome"},
	)

	DomainEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashew_domain_events_total",
			Help: "Total number of emitted domain events",
		},
		[]string{"event", "status"},
	)

	CardExpiryNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashew_card_expiry_notifications_total",
			Help: "Total number of card expiry notifications",
		},
		[]string{"status"},
	)

	SubscriptionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashew_subscription_transitions_total",
			Help: "Total number of subscription lifecycle transitions",
		},
		[]string{"transition", "status"},
	)

	TaskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashew_task_runs_total",
			Help: "Total number of periodic task runs",
		},
		[]string{"task", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashew_task_duration_seconds",
			Help:    "Periodic task run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	GatewayBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cashew_gateway_breaker_open",
			Help: "1 while the gateway circuit breaker is open",
		},
		[]string{"name"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, path, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordWebhookEvent counts a webhook event by type and outcome
// ("dispatched", "ignored", "rejected", "failed").
func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordDomainEvent counts an emitted domain event.
func RecordDomainEvent(event string, err error) {
	DomainEventsTotal.WithLabelValues(event, status(err)).Inc()
}

// RecordCardExpiryNotification counts a matched card expiry notification.
func RecordCardExpiryNotification(err error) {
	CardExpiryNotificationsTotal.WithLabelValues(status(err)).Inc()
}

// RecordTransition counts a lifecycle transition such as "cancel".
func RecordTransition(transition string, err error) {
	SubscriptionTransitionsTotal.WithLabelValues(transition, status(err)).Inc()
}

// RecordTaskRun records one periodic task run.
func RecordTaskRun(task string, seconds float64, err error) {
	TaskRunsTotal.WithLabelValues(task, status(err)).Inc()
	TaskDuration.WithLabelValues(task).Observe(seconds)
}

// SetBreakerOpen flips the breaker gauge.
func SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	GatewayBreakerOpen.WithLabelValues(name).Set(v)
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
