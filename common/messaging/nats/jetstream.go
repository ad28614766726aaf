package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/khushi89012/syook/common/messaging"
)

// JetStreamClient publishes into a persisted stream so late subscribers can replay.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig is the subset of jetstream.StreamConfig the listener manages.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType

	// Duplicates is the window in which a repeated Nats-Msg-Id is dropped.
	Duplicates time.Duration
}

// ReadingsStream captures everything the listener publishes.
var ReadingsStream = StreamConfig{
	Name:       "TIMESERIES_READINGS",
	Subjects:   []string{messaging.SubjectAll},
	MaxAge:     24 * time.Hour,
	MaxBytes:   512 * 1024 * 1024,
	MaxMsgs:    1_000_000,
	Retention:  jetstream.LimitsPolicy,
	Storage:    jetstream.FileStorage,
	Duplicates: 2 * time.Minute,
}

// NewJetStreamClient connects and opens a JetStream context.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream makes sure the stream exists with cfg.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Retention:  cfg.Retention,
		Storage:    cfg.Storage,
		Duplicates: cfg.Duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// Publish stores data in the stream and waits for the server ack.
// A Nats-Msg-Id header, when given, is used for de-duplication.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte, opts ...messaging.PublishOption) error {
	o := messaging.ApplyPublishOptions(opts...)

	var pubOpts []jetstream.PublishOpt
	if id, ok := o.Headers[jetstream.MsgIDHeader]; ok {
		pubOpts = append(pubOpts, jetstream.WithMsgID(id))
		delete(o.Headers, jetstream.MsgIDHeader)
	}

	if _, err := c.js.PublishMsg(ctx, toNatsMsg(subject, data, o), pubOpts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
