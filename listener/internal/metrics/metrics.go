package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as label values on SegmentsRejected.
const (
	ReasonFraming   = "framing"
	ReasonDecode    = "decode"
	ReasonIntegrity = "integrity"
)

var (
	// Ingestion metrics
	SegmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeseries_listener_segments_total",
			Help: "Total number of segments received",
		},
	)

	ValidRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeseries_listener_valid_records_total",
			Help: "Total number of segments that passed validation",
		},
	)

	SegmentsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeseries_listener_segments_rejected_total",
			Help: "Total number of segments rejected, by reason",
		},
		[]string{"reason"},
	)

	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeseries_listener_batches_total",
			Help: "Total number of batches processed",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timeseries_listener_batch_duration_seconds",
			Help:    "Duration of batch processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timeseries_listener_connections_active",
			Help: "Number of open TCP connections",
		},
	)

	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeseries_listener_connections_total",
			Help: "Total number of accepted TCP connections, by outcome",
		},
		[]string{"status"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeseries_listener_rate_limit_hits_total",
			Help: "Total number of connections refused by the rate limiter",
		},
		[]string{"scope"},
	)

	// Persistence metrics
	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timeseries_listener_storage_duration_seconds",
			Help:    "Duration of bucket upserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeseries_listener_storage_errors_total",
			Help: "Total number of failed bucket upserts",
		},
	)

	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timeseries_listener_retry_queue_depth",
			Help: "Current number of buckets waiting to be retried",
		},
	)

	RetryQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeseries_listener_retry_queue_dropped_total",
			Help: "Total number of buckets dropped because the retry queue was full",
		},
	)

	StoreConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timeseries_listener_store_connected",
			Help: "1 when the bucket store is connected, 0 otherwise",
		},
	)

	// Notification metrics
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeseries_listener_publish_errors_total",
			Help: "Total number of failed event publications, by subject",
		},
		[]string{"subject"},
	)
)
