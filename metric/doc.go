// Package metric provides Prometheus-based metrics collection and an HTTP
// server for exposing them.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (service status, message processing, NATS health) and
// file-writer domain metrics (topic/source/job counters, queue depth), plus
// an extensible registry for service-specific metrics. It includes an HTTP
// server exposing metrics in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: platform and domain metrics automatically registered (Metrics type)
//  2. Service Registry: extensible registration for service-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with a health check (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordServiceStatus("kafka-to-nexus", 2)
//	coreMetrics.RecordSourceWritten(jobID, topic, source)
//
// # Core Metrics
//
// The package automatically registers metrics tracking:
//
//   - Service lifecycle: service_status
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds, nats_reconnects_total
//   - Ingest: topic_messages_consumed_total, source_written_total, source_dropped_total,
//     source_write_errors_total, filesink_queue_depth, broker_metadata_retries_total,
//     job_lifecycle_duration_seconds, job_active, partition_high_water_mark_pending
//
// # Service-Specific Metrics
//
// Callers can register additional metrics through the registry:
//
//	requestCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "api_requests_total",
//	    Help: "Total number of API requests",
//	})
//	err := registry.RegisterCounter("master", "api_requests_total", requestCounter)
//
// # HTTP Server
//
// The metrics server exposes:
//
//   - GET / - an HTML page linking to the metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (configurable path)
//   - GET /health - a plain-text health check
//
// # Thread Safety
//
// All registry operations are thread-safe: registration uses mutex
// protection, metric recording is lock-free (a Prometheus guarantee), and
// CoreMetrics()/PrometheusRegistry() are safe for concurrent access.
package metric
