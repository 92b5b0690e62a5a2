// Package metrics provides Prometheus metrics for the Conduit service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks sync runs by resource, action and status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by resource, action and status",
		},
		[]string{"server_id", "resource", "action", "status"},
	)

	// SyncRunDuration tracks sync run duration in seconds
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"server_id", "resource"},
	)

	// PollBatchSize tracks how many records each polling pass saw
	PollBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "sync",
			Name:      "poll_batch_size",
			Help:      "Number of modified records seen per polling pass",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"server_id", "resource"},
	)

	// HTTPRequestsTotal tracks outbound WooCommerce requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "woocommerce",
			Name:      "requests_total",
			Help:      "Total number of outbound WooCommerce requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound WooCommerce request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "woocommerce",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound WooCommerce requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// ListCacheHits tracks list cache hits and misses
	ListCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "listcache",
			Name:      "lookups_total",
			Help:      "Total number of list cache lookups by result",
		},
		[]string{"resource", "result"},
	)

	// QueueJobsProcessed tracks jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// DLQJobsTotal tracks jobs sent to the dead letter queue
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "dlq",
			Name:      "jobs_total",
			Help:      "Total number of jobs sent to dead letter queue",
		},
		[]string{"server_id", "reason"},
	)

	// SchedulerPollsScheduled tracks polling passes scheduled
	SchedulerPollsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "scheduler",
			Name:      "polls_scheduled_total",
			Help:      "Total number of polling passes scheduled",
		},
	)

	// RateLimitHits tracks per-store rate limit hits
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of rate limit hits",
		},
		[]string{"server_id"},
	)

	// RateLimitWaitTime tracks time spent waiting for rate limits
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for rate limits in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"server_id"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordSyncRun records one sync run outcome
func RecordSyncRun(serverID, resource, action, status string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(serverID, resource, action, status).Inc()
	SyncRunDuration.WithLabelValues(serverID, resource).Observe(durationSeconds)
}

// RecordPollBatch records the size of one polling pass
func RecordPollBatch(serverID, resource string, size int) {
	PollBatchSize.WithLabelValues(serverID, resource).Observe(float64(size))
}

// RecordHTTPRequest records an outbound WooCommerce request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordListCacheLookup records a list cache hit or miss
func RecordListCacheLookup(resource string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ListCacheHits.WithLabelValues(resource, result).Inc()
}

// RecordQueueJob records a queue job processing metric
func RecordQueueJob(status string) {
	QueueJobsProcessed.WithLabelValues(status).Inc()
}

// RecordDLQJob records a dead letter queue job
func RecordDLQJob(serverID, reason string) {
	DLQJobsTotal.WithLabelValues(serverID, reason).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
