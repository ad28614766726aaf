package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/listener/internal/metrics"
	"github.com/khushi89012/syook/listener/internal/models"
	"github.com/khushi89012/syook/listener/internal/repository"
)

var (
	// ErrQueueFull means a failed bucket could not be queued and was dropped.
	ErrQueueFull = errors.New("retry queue full")

	ErrWriterClosed = errors.New("writer closed")
)

// DefaultQueueSize matches persist.queue_size.
const DefaultQueueSize = 1024

type job struct {
	minute  time.Time
	records []models.Reading
}

// Writer upserts buckets, queueing failed writes for background retry.
type Writer struct {
	store  repository.Store
	policy Policy
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter starts the retry worker. Call Stop to drain it.
func NewWriter(store repository.Store, policy Policy, queueSize int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Writer{
		store:  store,
		policy: policy,
		logger: logger,
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// Write attempts the upsert once. On failure the bucket is queued for retry
// and the store error is returned; if the queue is full ErrQueueFull is
// joined to it.
func (w *Writer) Write(ctx context.Context, minute time.Time, records []models.Reading) (*repository.UpsertResult, error) {
	res, err := w.upsert(ctx, minute, records)
	if err == nil {
		return res, nil
	}

	if qerr := w.enqueue(job{minute: minute, records: records}); qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	return nil, err
}

func (w *Writer) upsert(ctx context.Context, minute time.Time, records []models.Reading) (*repository.UpsertResult, error) {
	start := time.Now()
	res, err := w.store.UpsertBucket(ctx, minute, records)
	metrics.StorageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.Inc()
	}
	return res, err
}

func (w *Writer) enqueue(j job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.queue <- j:
		metrics.RetryQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		metrics.RetryQueueDropped.Inc()
		w.logger.Error("retry queue full, dropping bucket",
			logging.Minute(j.minute),
			slog.Int("records", len(j.records)),
		)
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(w.queue))
	}
}

// Pending reports how many buckets are waiting for a retry.
func (w *Writer) Pending() int {
	return len(w.queue)
}

func (w *Writer) run() {
	defer w.wg.Done()

	for j := range w.queue {
		metrics.RetryQueueDepth.Set(float64(len(w.queue)))

		if w.ctx.Err() != nil {
			w.logger.Error("writer stopped, dropping bucket",
				logging.Minute(j.minute),
				slog.Int("records", len(j.records)),
			)
			continue
		}
		w.retry(j)
	}
}

// retry keeps trying j until it lands or the writer is stopped.
func (w *Writer) retry(j job) {
	b := backoff.WithContext(w.policy.newBackOff(), w.ctx)
	attempts := 0

	op := func() error {
		attempts++
		_, err := w.upsert(w.ctx, j.minute, j.records)
		return err
	}
	notify := func(err error, next time.Duration) {
		w.logger.Warn("bucket retry failed",
			logging.Minute(j.minute),
			logging.Error(err),
			slog.Int("attempt", attempts),
			slog.Duration("retry_in", next),
		)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		w.logger.Error("giving up on bucket",
			logging.Minute(j.minute),
			slog.Int("records", len(j.records)),
			logging.Error(err),
		)
		return
	}

	w.logger.Info("bucket persisted after retry",
		logging.Minute(j.minute),
		slog.Int("records", len(j.records)),
		slog.Int("attempts", attempts),
	)
}

// Stop refuses new work and drains the queue until ctx is done, then
// abandons whatever is left.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		pending := len(w.queue)
		w.cancel()
		<-done
		return fmt.Errorf("retry queue not drained, %d buckets dropped: %w", pending, ctx.Err())
	}
}
