package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Queue job handling duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"routing_key", "outcome"},
	)

	IMAPSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imap_session_duration_seconds",
			Help:    "Full IMAP fetch session duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"outcome"},
	)

	InferenceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_call_duration_seconds",
			Help:    "Single inference call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"stage", "status"},
	)

	EmailsFetchedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_fetched_count",
			Help: "Messages seen during sync, by disposition",
		},
		[]string{"disposition"}, // kept, promotional, empty, fetch_error
	)

	EmailsAnalyzedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_analyzed_count",
			Help: "Analysis jobs finished, by final email status",
		},
		[]string{"status"}, // completed, failed
	)
)

// RecordJobDuration records one queue job handling duration.
func RecordJobDuration(routingKey, outcome string, d time.Duration) {
	JobDuration.WithLabelValues(routingKey, outcome).Observe(d.Seconds())
}

// RecordIMAPSession records one full IMAP session duration.
func RecordIMAPSession(outcome string, d time.Duration) {
	IMAPSessionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordInferenceCall records one inference stage call.
func RecordInferenceCall(stage, status string, d time.Duration) {
	InferenceCallDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncrementFetched counts one message seen during sync.
func IncrementFetched(disposition string) {
	EmailsFetchedCount.WithLabelValues(disposition).Inc()
}

// IncrementAnalyzed counts one finished analysis job.
func IncrementAnalyzed(status string) {
	EmailsAnalyzedCount.WithLabelValues(status).Inc()
}
