// Package runner drives the emitter's send loop.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/emitter/internal/builder"
)

// BatchBuilder produces the next batch to send.
type BatchBuilder interface {
	Build() (*builder.Batch, error)
}

// Transport delivers one payload.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Addr() string
}

// Summary counts what a Runner has done so far.
type Summary struct {
	Batches  int `json:"batches"`
	Records  int `json:"records"`
	Failures int `json:"failures"`
}

// Runner builds and sends one batch per tick.
type Runner struct {
	builder  BatchBuilder
	sender   Transport
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	summary Summary
}

// New creates a Runner. A nil logger uses logging.Default().
func New(b BatchBuilder, s Transport, interval time.Duration, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{builder: b, sender: s, interval: interval, logger: logger}
}

// SendOnce builds one batch and sends it, returning the record count.
func (r *Runner) SendOnce(ctx context.Context) (int, error) {
	batch, err := r.builder.Build()
	if err != nil {
		r.record(0, err)
		return 0, err
	}

	start := time.Now()
	err = r.sender.Send(ctx, batch.Payload)
	r.record(len(batch.Records), err)
	if err != nil {
		return 0, err
	}

	r.logger.InfoContext(ctx, "sent batch",
		slog.String("addr", r.sender.Addr()),
		logging.Segments(len(batch.Records)),
		slog.Int("bytes", len(batch.Payload)),
		logging.Duration(time.Since(start)),
	)
	return len(batch.Records), nil
}

// Run sends immediately and then once per interval until ctx is done.
// Send failures are logged and the loop carries on. Ticks that fire while a
// send is still in flight are dropped.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "emitter started",
		slog.String("addr", r.sender.Addr()),
		slog.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.SendOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "send failed", slog.String("addr", r.sender.Addr()), logging.Error(err))
		}

		select {
		case <-ctx.Done():
			s := r.Summary()
			r.logger.Info("emitter stopped",
				slog.Int("batches", s.Batches),
				slog.Int("records", s.Records),
				slog.Int("failures", s.Failures),
			)
			return nil
		case <-ticker.C:
		}
	}
}

// Summary returns a copy of the counters.
func (r *Runner) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

func (r *Runner) record(records int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.summary.Failures++
		return
	}
	r.summary.Batches++
	r.summary.Records += records
}
