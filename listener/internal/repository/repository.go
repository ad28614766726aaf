// Package repository persists minute buckets.
//
// Every backend implements UpsertBucket as one atomic append-or-create at the
// storage layer. Callers never read a bucket to decide how to write it.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/khushi89012/syook/listener/internal/models"
)

var (
	// ErrPersistence wraps every failure to reach or write to the store.
	ErrPersistence = errors.New("persistence error")

	ErrBucketNotFound = errors.New("bucket not found")
)

// Store is the durable home of minute buckets.
type Store interface {
	// UpsertBucket appends records to the bucket for minute, creating it if absent.
	// Concurrent calls for the same minute both land; neither overwrites the other.
	UpsertBucket(ctx context.Context, minute time.Time, records []models.Reading) (*UpsertResult, error)

	GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error)

	// ListBuckets returns buckets with from <= minute < to, oldest first.
	ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error)

	Ping(ctx context.Context) error
	Close()
}

// UpsertResult reports what one UpsertBucket call did.
type UpsertResult struct {
	Minute time.Time
	// Created is true when this call created the bucket.
	Created bool
	// RecordCount is the bucket's size after the append.
	RecordCount int
}

// minuteKey zeroes everything below the minute so every backend keys buckets identically.
func minuteKey(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
