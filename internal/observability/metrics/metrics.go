// Package metrics provides Prometheus metrics for the submission server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "present_coach"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SubmissionsCreated prometheus.Counter

	WebhookEvents        *prometheus.CounterVec // by outcome
	PaymentsConfirmed    prometheus.Counter
	PaymentsEmailMissing prometheus.Counter
	DuplicateConfirms    prometheus.Counter

	EmailPatches *prometheus.CounterVec // by outcome

	UploadURLRequests *prometheus.CounterVec // by outcome
	Rejections        *prometheus.CounterVec // by reason

	StaleSubmissionsDeleted prometheus.Counter

	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	HTTPRequestDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SubmissionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_created_total",
			Help:      "Total number of create-submission calls accepted",
		}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by outcome",
		}, []string{"outcome"}),
		PaymentsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Total number of payment confirmations written",
		}),
		PaymentsEmailMissing: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_email_missing_total",
			Help:      "Payment confirmations written without a discoverable email",
		}),
		DuplicateConfirms: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_duplicate_total",
			Help:      "Repeated confirmations for an already confirmed transaction",
		}),
		EmailPatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_patches_total",
			Help:      "Email patch requests by outcome",
		}, []string{"outcome"}),
		UploadURLRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_url_requests_total",
			Help:      "Signed upload URL requests by outcome",
		}, []string{"outcome"}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_rejections_total",
			Help:      "Privileged requests rejected, by reason",
		}, []string{"reason"}),
		StaleSubmissionsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_submissions_deleted_total",
			Help:      "Submissions removed after staying pending past the retention window",
		}),
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total Kafka publish attempts",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"topic"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// RecordWebhook records the outcome of a webhook delivery: ok, ignored,
// invalid or error.
func (m *Metrics) RecordWebhook(outcome string) {
	m.WebhookEvents.WithLabelValues(outcome).Inc()
}

// RecordPaymentConfirmed records a confirmation write.
func (m *Metrics) RecordPaymentConfirmed(emailMissing, duplicate bool) {
	m.PaymentsConfirmed.Inc()
	if emailMissing {
		m.PaymentsEmailMissing.Inc()
	}
	if duplicate {
		m.DuplicateConfirms.Inc()
	}
}

// RecordRejection records a privileged request refused for reason.
func (m *Metrics) RecordRejection(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}
