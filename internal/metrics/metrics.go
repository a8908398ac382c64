package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookRequests  *prometheus.CounterVec
	IntentRequests   *prometheus.CounterVec
	IntentLatency    *prometheus.HistogramVec
	Transitions      *prometheus.CounterVec
	PaymentsMatched  *prometheus.CounterVec
	FallbackMatches  prometheus.Counter
	CredentialIssued prometheus.Counter
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_requests_total",
				Help:      "Total inbound webhook requests by endpoint and outcome.",
			}, []string{"endpoint", "outcome"}),
			IntentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intent_requests_total",
				Help:      "Total intent resolver requests by outcome.",
			}, []string{"status"}),
			IntentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "intent_request_duration_seconds",
				Help:      "Latency distribution for intent resolver calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Total client state transitions by target state.",
			}, []string{"to"}),
			PaymentsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_matched_total",
				Help:      "Total payment notifications by matching outcome.",
			}, []string{"outcome"}),
			FallbackMatches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_fallback_matches_total",
				Help:      "Payments matched via the system-wide fallback rather than a phone number.",
			}),
			CredentialIssued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credentials_issued_total",
				Help:      "Total credential handoffs completed.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookRequests,
			metricsInstance.IntentRequests,
			metricsInstance.IntentLatency,
			metricsInstance.Transitions,
			metricsInstance.PaymentsMatched,
			metricsInstance.FallbackMatches,
			metricsInstance.CredentialIssued,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
