package metrics

import (
	"sync/atomic"

	"github.com/khushi89012/syook/listener/internal/models"
)

// Counters are the process-wide running totals reported in stats events.
// Create one in main and share it.
type Counters struct {
	segments atomic.Int64
	valid    atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

// Add records one processed batch and returns the totals including it.
func (c *Counters) Add(segments, valid int) models.Stats {
	totalSegments := c.segments.Add(int64(segments))
	totalValid := c.valid.Add(int64(valid))

	SegmentsTotal.Add(float64(segments))
	ValidRecordsTotal.Add(float64(valid))

	return models.NewStats(totalSegments, totalValid)
}

// Snapshot returns the current totals. valid is loaded before segments, the
// reverse of Add, so the rate never exceeds 100.
func (c *Counters) Snapshot() models.Stats {
	valid := c.valid.Load()
	return models.NewStats(c.segments.Load(), valid)
}
