package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/khushi89012/syook/listener/internal/models"
)

// MemoryStore keeps buckets in process memory. Used in tests and with
// storage.backend=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[time.Time]*models.MinuteBucket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[time.Time]*models.MinuteBucket),
		now:     time.Now,
	}
}

func (s *MemoryStore) UpsertBucket(ctx context.Context, minute time.Time, records []models.Reading) (*UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	minute = minuteKey(minute)
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[minute]
	if !ok {
		b = &models.MinuteBucket{Minute: minute, CreatedAt: now}
		s.buckets[minute] = b
	}
	b.Records = append(b.Records, records...)
	b.UpdatedAt = now

	return &UpsertResult{Minute: minute, Created: !ok, RecordCount: len(b.Records)}, nil
}

func (s *MemoryStore) GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[minuteKey(minute)]
	if !ok {
		return nil, ErrBucketNotFound
	}
	return cloneBucket(b), nil
}

func (s *MemoryStore) ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MinuteBucket
	for minute, b := range s.buckets {
		if minute.Before(from) || !minute.Before(to) {
			continue
		}
		out = append(out, *cloneBucket(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minute.Before(out[j].Minute) })
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() {}

func cloneBucket(b *models.MinuteBucket) *models.MinuteBucket {
	c := *b
	c.Records = append([]models.Reading(nil), b.Records...)
	return &c
}
