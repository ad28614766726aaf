// Package publisher notifies subscribers about ingested readings and stats.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/common/messaging"
	"github.com/khushi89012/syook/listener/internal/metrics"
	"github.com/khushi89012/syook/listener/internal/models"
)

// EventVersion is sent in the Ts-Version header.
const EventVersion = "1"

// ReadingsEvent carries the valid records of one batch.
type ReadingsEvent struct {
	Records []models.Reading `json:"readings"`
	// Minute is the bucket key of the batch's arrival time.
	Minute time.Time `json:"minute"`
}

// StatsEvent carries the running totals after a batch.
type StatsEvent = models.Stats

// Publisher is the notification sink of the ingestion path.
type Publisher interface {
	PublishReadings(ctx context.Context, ev ReadingsEvent) error
	PublishStats(ctx context.Context, ev StatsEvent) error
	Close() error
}

// BrokerPublisher encodes events as JSON and sends them through a
// messaging.Publisher, either core NATS or JetStream.
type BrokerPublisher struct {
	broker messaging.Publisher
	source string
	logger *slog.Logger
}

// New wraps broker. source identifies this listener instance in the Ts-Source header.
func New(broker messaging.Publisher, source string, logger *slog.Logger) *BrokerPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrokerPublisher{broker: broker, source: source, logger: logger}
}

func (p *BrokerPublisher) PublishReadings(ctx context.Context, ev ReadingsEvent) error {
	return p.publish(ctx, messaging.SubjectReadingsIngested, ev,
		messaging.WithHeader(messaging.HeaderMinute, ev.Minute.UTC().Format(time.RFC3339)),
	)
}

func (p *BrokerPublisher) PublishStats(ctx context.Context, ev StatsEvent) error {
	return p.publish(ctx, messaging.SubjectStatsUpdated, ev)
}

func (p *BrokerPublisher) publish(ctx context.Context, subject string, ev any, opts ...messaging.PublishOption) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}

	opts = append(opts,
		messaging.WithHeader(messaging.HeaderSource, p.source),
		messaging.WithHeader(messaging.HeaderVersion, EventVersion),
		messaging.WithHeader(messaging.HeaderMsgID, uuid.NewString()),
	)

	if err := p.broker.Publish(ctx, subject, data, opts...); err != nil {
		metrics.PublishErrors.WithLabelValues(subject).Inc()
		p.logger.Warn("failed to publish event", logging.Subject(subject), logging.Error(err))
		return err
	}
	return nil
}

func (p *BrokerPublisher) Close() error {
	return p.broker.Close()
}

// Noop drops every event. Used when NATS is disabled.
type Noop struct{}

func (Noop) PublishReadings(ctx context.Context, ev ReadingsEvent) error { return nil }
func (Noop) PublishStats(ctx context.Context, ev StatsEvent) error { return nil }
func (Noop) Close() error { return nil }
