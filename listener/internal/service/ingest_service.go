// Package service runs one batch through validation, aggregation,
// persistence and notification.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/listener/internal/bucket"
	"github.com/khushi89012/syook/listener/internal/metrics"
	"github.com/khushi89012/syook/listener/internal/models"
	"github.com/khushi89012/syook/listener/internal/publisher"
	"github.com/khushi89012/syook/listener/internal/repository"
	"github.com/khushi89012/syook/listener/internal/validator"
)

// BucketWriter persists one bucket. persist.Writer queues failures for retry.
type BucketWriter interface {
	Write(ctx context.Context, minute time.Time, records []models.Reading) (*repository.UpsertResult, error)
}

// StatsRecorder receives per-batch totals for cross-instance reporting.
type StatsRecorder interface {
	Record(received, valid int, minute time.Time)
}

type IngestService struct {
	validator *validator.Validator
	writer    BucketWriter
	publisher publisher.Publisher
	counters  *metrics.Counters
	stats     StatsRecorder
	logger    *logging.Logger
}

func NewIngestService(v *validator.Validator, w BucketWriter, p publisher.Publisher, counters *metrics.Counters, logger *logging.Logger) *IngestService {
	if logger == nil {
		logger = logging.Default()
	}
	if p == nil {
		p = publisher.Noop{}
	}
	return &IngestService{
		validator: v,
		writer:    w,
		publisher: p,
		counters:  counters,
		logger:    logger,
	}
}

// WithStats also reports every batch to rec.
func (s *IngestService) WithStats(rec StatsRecorder) *IngestService {
	s.stats = rec
	return s
}

// ProcessBatch handles one complete batch received at receivedAt. It never
// fails: bad segments are counted, store failures are queued for retry, and
// subscribers are notified either way.
func (s *IngestService) ProcessBatch(ctx context.Context, batch []byte, receivedAt time.Time) models.Outcome {
	start := time.Now()
	logger := s.logger.WithContext(ctx)

	res := s.validator.ValidateBatch(batch, receivedAt)
	totals := s.counters.Add(res.Total, res.ValidCount())

	metrics.BatchesTotal.Inc()
	metrics.SegmentsRejected.WithLabelValues(metrics.ReasonFraming).Add(float64(res.Framing))
	metrics.SegmentsRejected.WithLabelValues(metrics.ReasonDecode).Add(float64(res.Decode))
	metrics.SegmentsRejected.WithLabelValues(metrics.ReasonIntegrity).Add(float64(res.Integrity))

	minute := bucket.MinuteOf(receivedAt)
	if s.stats != nil {
		s.stats.Record(res.Total, res.ValidCount(), minute)
	}

	out := models.Outcome{
		ReceivedAt: receivedAt,
		Total:      res.Total,
		Valid:      res.ValidCount(),
	}

	buckets := bucket.Group(res.Valid)
	out.Buckets = len(buckets)
	for _, b := range buckets {
		if _, err := s.writer.Write(ctx, b.Minute, b.Records); err != nil {
			out.PersistFailures++
			logger.Warn("bucket write failed",
				logging.Minute(b.Minute),
				slog.Int("records", len(b.Records)),
				logging.Error(err),
			)
		}
	}

	if out.Valid > 0 {
		ev := publisher.ReadingsEvent{Records: res.Valid, Minute: minute}
		// Publish failures are counted and logged by the publisher.
		_ = s.publisher.PublishReadings(ctx, ev)
	}
	_ = s.publisher.PublishStats(ctx, totals)

	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	logger.Debug("batch processed",
		logging.Minute(minute),
		logging.Segments(out.Total),
		logging.Valid(out.Valid),
		slog.Int("buckets", out.Buckets),
		logging.Duration(time.Since(start)),
	)

	return out
}

// Stats returns the process-wide totals.
func (s *IngestService) Stats() models.Stats {
	return s.counters.Snapshot()
}
