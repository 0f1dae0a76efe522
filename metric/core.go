package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level and file-writer domain metrics.
type Metrics struct {
	// Service metrics
	ServiceStatus      *prometheus.GaugeVec
	MessagesReceived   *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge

	// Ingest metrics, one series per topic/source/job as labeled.
	TopicMessagesConsumed *prometheus.CounterVec
	SourceWritten         *prometheus.CounterVec
	SourceDropped         *prometheus.CounterVec
	SourceWriteErrors     *prometheus.CounterVec
	FileSinkQueueDepth    *prometheus.GaugeVec
	FileSinkQueueCapacity *prometheus.GaugeVec
	BrokerMetadataRetries *prometheus.CounterVec
	JobLifecycleDuration  *prometheus.HistogramVec
	JobsActive            prometheus.Gauge
	PartitionLag          *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all platform and domain metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Service metrics
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received",
			},
			[]string{"service", "type"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of messages processed",
			},
			[]string{"service", "type", "status"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages published",
			},
			[]string{"service", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kafkatonexus",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Message processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),

		// Ingest metrics
		TopicMessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "topic",
				Name:      "messages_consumed_total",
				Help:      "Total number of messages consumed per topic and partition",
			},
			[]string{"job_id", "topic", "partition"},
		),

		SourceWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "source",
				Name:      "written_total",
				Help:      "Total number of messages written to a source's writer module",
			},
			[]string{"job_id", "topic", "source"},
		),

		SourceDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "source",
				Name:      "dropped_total",
				Help:      "Total number of messages dropped by the demultiplexer (unknown source, out of window, duplicate)",
			},
			[]string{"job_id", "topic", "reason"},
		),

		SourceWriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "source",
				Name:      "write_errors_total",
				Help:      "Total number of writer module write failures",
			},
			[]string{"job_id", "topic", "source"},
		),

		FileSinkQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "filesink",
				Name:      "queue_depth",
				Help:      "Number of pending operations in a job's file sink queue",
			},
			[]string{"job_id"},
		),

		FileSinkQueueCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "filesink",
				Name:      "queue_capacity",
				Help:      "Configured capacity of a job's file sink queue",
			},
			[]string{"job_id"},
		),

		BrokerMetadataRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kafkatonexus",
				Subsystem: "broker",
				Name:      "metadata_retries_total",
				Help:      "Total number of metadata/offset lookup retries by a topic coordinator",
			},
			[]string{"job_id", "topic"},
		),

		JobLifecycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kafkatonexus",
				Subsystem: "job",
				Name:      "lifecycle_duration_seconds",
				Help:      "Duration of a write job phase (start, run, stop)",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
			},
			[]string{"phase"},
		),

		JobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "job",
				Name:      "active",
				Help:      "Number of write jobs currently running",
			},
		),

		PartitionLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kafkatonexus",
				Subsystem: "partition",
				Name:      "high_water_mark_pending",
				Help:      "Broker-reported pending message count for a partition worker",
			},
			[]string{"job_id", "topic", "partition"},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(service, messageType string) {
	c.MessagesReceived.WithLabelValues(service, messageType).Inc()
}

// RecordMessageProcessed increments processed message counter
func (c *Metrics) RecordMessageProcessed(service, messageType, status string) {
	c.MessagesProcessed.WithLabelValues(service, messageType, status).Inc()
}

// RecordMessagePublished increments published message counter
func (c *Metrics) RecordMessagePublished(service, subject string) {
	c.MessagesPublished.WithLabelValues(service, subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}

// RecordTopicMessageConsumed increments a partition's consumed-message counter.
func (c *Metrics) RecordTopicMessageConsumed(jobID, topic, partition string) {
	c.TopicMessagesConsumed.WithLabelValues(jobID, topic, partition).Inc()
}

// RecordSourceWritten increments a source's written-message counter.
func (c *Metrics) RecordSourceWritten(jobID, topic, source string) {
	c.SourceWritten.WithLabelValues(jobID, topic, source).Inc()
}

// RecordSourceDropped increments the demultiplexer's drop counter for a reason
// (missing_timestamp, unknown_source, pre_window, duplicate_timestamp).
func (c *Metrics) RecordSourceDropped(jobID, topic, reason string) {
	c.SourceDropped.WithLabelValues(jobID, topic, reason).Inc()
}

// RecordSourceWriteError increments a source's write-error counter.
func (c *Metrics) RecordSourceWriteError(jobID, topic, source string) {
	c.SourceWriteErrors.WithLabelValues(jobID, topic, source).Inc()
}

// SetFileSinkQueueDepth reports current/capacity depth for a job's file sink queue.
func (c *Metrics) SetFileSinkQueueDepth(jobID string, depth, capacity int) {
	c.FileSinkQueueDepth.WithLabelValues(jobID).Set(float64(depth))
	c.FileSinkQueueCapacity.WithLabelValues(jobID).Set(float64(capacity))
}

// RecordBrokerMetadataRetry increments a topic coordinator's metadata retry counter.
func (c *Metrics) RecordBrokerMetadataRetry(jobID, topic string) {
	c.BrokerMetadataRetries.WithLabelValues(jobID, topic).Inc()
}

// RecordJobLifecycle records how long a job phase (start, run, stop) took.
func (c *Metrics) RecordJobLifecycle(phase string, d time.Duration) {
	c.JobLifecycleDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetJobsActive reports the current number of running write jobs.
func (c *Metrics) SetJobsActive(n int) {
	c.JobsActive.Set(float64(n))
}

// SetPartitionLag reports a partition worker's broker-side pending count.
func (c *Metrics) SetPartitionLag(jobID, topic, partition string, pending int64) {
	c.PartitionLag.WithLabelValues(jobID, topic, partition).Set(float64(pending))
}
