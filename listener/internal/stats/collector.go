package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/listener/internal/models"
)

// Collector accumulates batch totals and flushes them to Redis periodically.
// Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu    sync.Mutex
	batch *BatchUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts the background flush loop.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batch:         NewBatchUpdate(),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record accumulates one processed batch.
func (c *Collector) Record(received, valid int, minute time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batch.Add(int64(received), int64(valid), minute)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batch := c.batch
	c.batch = NewBatchUpdate()
	c.mu.Unlock()

	if batch.Empty() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.client.FlushBatch(ctx, batch); err != nil {
		c.logger.Error("failed to flush stats",
			slog.Int64("received", batch.Received),
			slog.Int64("valid", batch.Valid),
			logging.Error(err),
		)
		// Merge back for the next tick.
		c.mu.Lock()
		c.batch.Merge(batch)
		c.mu.Unlock()
		return
	}

	c.logger.Debug("flushed stats",
		slog.Int64("received", batch.Received),
		slog.Int64("valid", batch.Valid),
		slog.Int("minutes", len(batch.Minutes)),
	)
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop stops the collector and flushes what is left.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the totals not yet flushed.
func (c *Collector) Pending() (received, valid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch.Received, c.batch.Valid
}

// Totals returns the cluster-wide totals.
func (c *Collector) Totals(ctx context.Context) (models.Stats, error) {
	return c.client.GetTotals(ctx)
}
