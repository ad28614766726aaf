package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "buckets.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	t.Run("create then append", func(t *testing.T) {
		minute := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
		at := minute.Add(12 * time.Second)

		first, err := store.UpsertBucket(ctx, minute.Add(5*time.Second), readingsAt("a", 3, at))
		require.NoError(t, err)
		assert.True(t, first.Created)
		assert.Equal(t, 3, first.RecordCount)
		assert.Equal(t, minute, first.Minute)

		second, err := store.UpsertBucket(ctx, minute, readingsAt("b", 2, at))
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, 5, second.RecordCount)

		b, err := store.GetBucket(ctx, minute)
		require.NoError(t, err)
		assert.Equal(t, minute, b.Minute)
		require.Len(t, b.Records, 5)
		assert.Equal(t, "a-0", b.Records[0].Name)
		assert.Equal(t, "b-1", b.Records[4].Name)
		assert.True(t, at.Equal(b.Records[0].Timestamp))
		assert.False(t, b.UpdatedAt.Before(b.CreatedAt))
	})

	t.Run("non-UTC minute shares the bucket", func(t *testing.T) {
		ist := time.FixedZone("IST", 5*3600+1800)
		minute := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

		_, err := store.UpsertBucket(ctx, minute, readingsAt("u", 1, minute))
		require.NoError(t, err)
		res, err := store.UpsertBucket(ctx, minute.In(ist).Add(30*time.Second), readingsAt("i", 1, minute))
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, 2, res.RecordCount)
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := store.GetBucket(ctx, time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.True(t, errors.Is(err, ErrBucketNotFound))
	})

	t.Run("concurrent upserts to one minute lose nothing", func(t *testing.T) {
		minute := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		const writers, perWriter = 8, 25

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		created := make(chan bool, writers)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				res, err := store.UpsertBucket(ctx, minute, readingsAt(fmt.Sprintf("w%d", w), perWriter, minute))
				errs <- err
				if err == nil {
					created <- res.Created
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		close(created)
		for err := range errs {
			require.NoError(t, err)
		}

		creators := 0
		for c := range created {
			if c {
				creators++
			}
		}
		assert.Equal(t, 1, creators)

		b, err := store.GetBucket(ctx, minute)
		require.NoError(t, err)
		assert.Len(t, b.Records, writers*perWriter)
	})

	t.Run("list range", func(t *testing.T) {
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			_, err := store.UpsertBucket(ctx, base.Add(time.Duration(i)*time.Minute), readingsAt(fmt.Sprintf("l%d", i), 2, base))
			require.NoError(t, err)
		}

		buckets, err := store.ListBuckets(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
		require.NoError(t, err)
		require.Len(t, buckets, 2)
		assert.Equal(t, base.Add(time.Minute), buckets[0].Minute)
		assert.Equal(t, base.Add(2*time.Minute), buckets[1].Minute)
		require.Len(t, buckets[0].Records, 2)
		assert.Equal(t, "l1-0", buckets[0].Records[0].Name)
		assert.Equal(t, "l2-1", buckets[1].Records[1].Name)

		empty, err := store.ListBuckets(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buckets.db")
	ctx := context.Background()
	minute := time.Date(2024, 5, 5, 5, 5, 0, 0, time.UTC)

	first, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	_, err = first.UpsertBucket(ctx, minute, readingsAt("p", 4, minute))
	require.NoError(t, err)
	first.Close()

	second, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	b, err := second.GetBucket(ctx, minute)
	require.NoError(t, err)
	assert.Len(t, b.Records, 4)

	res, err := second.UpsertBucket(ctx, minute, readingsAt("q", 1, minute))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 5, res.RecordCount)
}

func TestSQLiteStore_ClosedStoreWrapsPersistence(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	store.Close()

	_, err = store.UpsertBucket(context.Background(), time.Now(), readingsAt("x", 1, time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(store.Ping(context.Background()), ErrPersistence))
}
