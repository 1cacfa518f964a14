package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of webhook deliveries by ingress path and outcome (count)",
		},
		[]string{"path", "outcome"},
	)

	WebhookProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_ms",
			Help:    "Pipeline processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"outcome"},
	)

	WebhookSignatureFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Total number of direct deliveries rejected by signature verification (count)",
		},
	)

	WebhookRelayPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_relay_published_total",
			Help: "Total number of relay publish attempts (count)",
		},
		[]string{"broker", "status"},
	)

	WebhookRelayDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_relay_dropped_total",
			Help: "Total number of relayed envelopes dropped on secret mismatch (count)",
		},
		[]string{"source"},
	)

	TrackerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_operations_total",
			Help: "Total number of idempotency tracker operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	TrackerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_operation_duration_ms",
			Help:    "Idempotency tracker operation duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"backend", "operation"},
	)

	ProcessorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_requests_total",
			Help: "Total number of payment processor API requests (count)",
		},
		[]string{"operation", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from the broker (count)",
		},
		[]string{"broker", "topic"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to the broker (count)",
		},
		[]string{"broker", "topic"},
	)

	BrokerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_write_duration_ms",
			Help:    "Time until the broker acknowledged a publish in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"broker", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterWebhookMetrics() {
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(WebhookProcessingDuration)
	prometheus.MustRegister(WebhookSignatureFailuresTotal)
	prometheus.MustRegister(WebhookRelayPublishedTotal)
	prometheus.MustRegister(WebhookRelayDroppedTotal)
	prometheus.MustRegister(TrackerOperationsTotal)
	prometheus.MustRegister(TrackerOperationDuration)
	prometheus.MustRegister(ProcessorRequestsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(BrokerMessagesReadTotal)
	prometheus.MustRegister(BrokerMessagesWrittenTotal)
	prometheus.MustRegister(BrokerWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func IncWebhookEvent(path, outcome string) {
	WebhookEventsTotal.WithLabelValues(path, outcome).Inc()
}

func ObserveProcessingDuration(outcome string, duration time.Duration) {
	WebhookProcessingDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncRelayPublished(broker, status string) {
	WebhookRelayPublishedTotal.WithLabelValues(broker, status).Inc()
}

func IncRelayDropped(source string) {
	WebhookRelayDroppedTotal.WithLabelValues(source).Inc()
}

func IncTrackerOperation(backend, operation, status string) {
	TrackerOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func ObserveTrackerOperationDuration(backend, operation string, duration time.Duration) {
	TrackerOperationDuration.WithLabelValues(backend, operation).Observe(float64(duration.Milliseconds()))
}

func IncProcessorRequest(operation, status string) {
	ProcessorRequestsTotal.WithLabelValues(operation, status).Inc()
}

func IncBrokerMessagesRead(broker, topic string) {
	BrokerMessagesReadTotal.WithLabelValues(broker, topic).Inc()
}

func IncBrokerMessagesWritten(broker, topic string) {
	BrokerMessagesWrittenTotal.WithLabelValues(broker, topic).Inc()
}

func ObserveBrokerWriteDuration(broker, topic string, duration time.Duration) {
	BrokerWriteDuration.WithLabelValues(broker, topic).Observe(float64(duration.Milliseconds()))
}
