package publisher

import (
	"context"
	"sync"
)

// Recorder keeps every event in memory. Tests use it to observe what the
// ingestion path published.
type Recorder struct {
	mu       sync.Mutex
	readings []ReadingsEvent
	stats    []StatsEvent

	// Err, when set, is returned from every publish after recording.
	Err error
}

func (r *Recorder) PublishReadings(ctx context.Context, ev ReadingsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, ev)
	return r.Err
}

func (r *Recorder) PublishStats(ctx context.Context, ev StatsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, ev)
	return r.Err
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Readings() []ReadingsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReadingsEvent(nil), r.readings...)
}

func (r *Recorder) Stats() []StatsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatsEvent(nil), r.stats...)
}
