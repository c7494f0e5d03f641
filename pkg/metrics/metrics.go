package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Call metrics
	CallsPlaced       *prometheus.CounterVec
	CallStatusChanges *prometheus.CounterVec
	ActiveCalls       prometheus.Gauge
	CallDuration      *prometheus.HistogramVec
	RetriesScheduled  *prometheus.CounterVec
	WebhooksReceived  *prometheus.CounterVec

	// Detection metrics
	CallsAnalyzed       *prometheus.CounterVec
	DetectionConfidence *prometheus.HistogramVec
	SignalUsage         *prometheus.CounterVec
	DetectionDuration   *prometheus.HistogramVec

	// Transcript metrics
	TranscriptsIngested  *prometheus.CounterVec
	TranscriptUtterances *prometheus.CounterVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  *prometheus.CounterVec
	AMQPReconnectAttempts *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		// Initialize call metrics
		CallsPlaced = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_calls_placed_total",
				Help: "Total number of outbound calls placed",
			},
			[]string{"result"},
		)

		CallStatusChanges = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_call_status_changes_total",
				Help: "Total number of call status transitions",
			},
			[]string{"status"},
		)

		ActiveCalls = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlas_active_calls",
				Help: "Number of calls currently in progress",
			},
		)

		CallDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_call_duration_seconds",
				Help:    "Duration of completed calls",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10), // From 1s to ~17min
			},
			[]string{"final_status"},
		)

		RetriesScheduled = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_retries_scheduled_total",
				Help: "Total number of retry attempts scheduled",
			},
			[]string{"reason"},
		)

		WebhooksReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_webhooks_received_total",
				Help: "Total number of provider webhooks received",
			},
			[]string{"type"},
		)

		// Initialize detection metrics
		CallsAnalyzed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_calls_analyzed_total",
				Help: "Total number of calls run through voicemail detection",
			},
			[]string{"result"},
		)

		DetectionConfidence = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_detection_confidence",
				Help:    "Confidence of voicemail detection results",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"method"},
		)

		SignalUsage = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_detection_signals_total",
				Help: "Total number of detection signals emitted by type",
			},
			[]string{"signal_type"},
		)

		DetectionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_detection_duration_seconds",
				Help:    "Time spent analyzing a call",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // From 0.1ms to ~100ms
			},
			[]string{"result"},
		)

		// Initialize transcript metrics
		TranscriptsIngested = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_transcripts_ingested_total",
				Help: "Total number of call transcripts ingested",
			},
			[]string{"source"},
		)

		TranscriptUtterances = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_transcript_utterances_total",
				Help: "Total number of transcript utterances processed",
			},
			[]string{"speaker"},
		)

		// Initialize AMQP metrics
		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"queue"},
		)

		AMQPConnectionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_amqp_connection_errors_total",
				Help: "Total number of AMQP connection errors",
			},
			[]string{"type"},
		)

		AMQPReconnectAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_amqp_reconnect_attempts_total",
				Help: "Total number of AMQP reconnection attempts",
			},
			[]string{"result"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlas_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		// Register all metrics
		registry.MustRegister(
			// Call metrics
			CallsPlaced,
			CallStatusChanges,
			ActiveCalls,
			CallDuration,
			RetriesScheduled,
			WebhooksReceived,

			// Detection metrics
			CallsAnalyzed,
			DetectionConfidence,
			SignalUsage,
			DetectionDuration,

			// Transcript metrics
			TranscriptsIngested,
			TranscriptUtterances,

			// AMQP metrics
			AMQPPublishedMessages,
			AMQPConnectionErrors,
			AMQPReconnectAttempts,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// StartMetrics initializes the metrics service. Collection always runs;
// the enabled flag only controls whether the HTTP endpoint is exposed.
func StartMetrics(logger *logrus.Logger, enabled bool) {
	Init(logger)

	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics endpoint is disabled")
		return
	}

	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}
