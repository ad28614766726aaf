package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var minute = time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

func TestClient_FlushBatch(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	c := NewClientFromRedis(rdb, "listener-a")
	ctx := context.Background()

	batch := NewBatchUpdate()
	batch.Add(10, 7, minute.Add(20*time.Second))
	batch.Add(5, 3, minute.Add(90*time.Second))
	require.NoError(t, c.FlushBatch(ctx, batch))

	totals, err := c.GetTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), totals.TotalReceived)
	assert.Equal(t, int64(10), totals.TotalValid)
	assert.Equal(t, 66.67, totals.SuccessRate)

	n, err := c.GetMinuteCount(ctx, minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, err = c.GetMinuteCount(ctx, minute.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.True(t, mr.TTL(minuteKey(minute)) > 0)

	instances, err := c.GetInstances(ctx)
	require.NoError(t, err)
	assert.Contains(t, instances, "listener-a")
}

func TestClient_TotalsAcrossInstances(t *testing.T) {
	_, rdb := setupTestRedis(t)
	a := NewClientFromRedis(rdb, "listener-a")
	b := NewClientFromRedis(rdb, "listener-b")
	ctx := context.Background()

	ba := NewBatchUpdate()
	ba.Add(4, 4, minute)
	require.NoError(t, a.FlushBatch(ctx, ba))

	bb := NewBatchUpdate()
	bb.Add(4, 0, minute)
	require.NoError(t, b.FlushBatch(ctx, bb))

	totals, err := a.GetTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), totals.TotalReceived)
	assert.Equal(t, 50.0, totals.SuccessRate)

	own, err := b.GetInstanceTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), own.TotalReceived)
	assert.Zero(t, own.TotalValid)

	instances, err := a.GetInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestClient_EmptyState(t *testing.T) {
	_, rdb := setupTestRedis(t)
	c := NewClientFromRedis(rdb, "listener-a")
	ctx := context.Background()

	totals, err := c.GetTotals(ctx)
	require.NoError(t, err)
	assert.Zero(t, totals.TotalReceived)
	assert.Zero(t, totals.SuccessRate)

	n, err := c.GetMinuteCount(ctx, minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Empty batches are not written.
	require.NoError(t, c.FlushBatch(ctx, NewBatchUpdate()))
	instances, err := c.GetInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient("redis://"+mr.Addr(), "listener-a")
	require.NoError(t, err)
	assert.NoError(t, c.Close())

	_, err = NewClient("not-a-valid-url", "listener-a")
	assert.Error(t, err)
}

func TestBatchUpdate_Merge(t *testing.T) {
	a := NewBatchUpdate()
	a.Add(3, 2, minute)

	b := NewBatchUpdate()
	b.Add(1, 1, minute)
	b.Add(2, 0, minute.Add(time.Minute))

	a.Merge(b)
	assert.Equal(t, int64(6), a.Received)
	assert.Equal(t, int64(3), a.Valid)
	assert.Equal(t, map[time.Time]int64{minute: 3}, a.Minutes)
}

func TestCollector_FlushNow(t *testing.T) {
	_, rdb := setupTestRedis(t)
	c := NewClientFromRedis(rdb, "listener-a")
	col := NewCollector(c, time.Hour, nil)
	defer col.Stop()

	col.Record(10, 9, minute)
	col.Record(10, 1, minute)

	received, valid := col.Pending()
	assert.Equal(t, int64(20), received)
	assert.Equal(t, int64(10), valid)

	col.FlushNow()

	received, _ = col.Pending()
	assert.Zero(t, received)

	totals, err := col.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), totals.TotalReceived)
	assert.Equal(t, 50.0, totals.SuccessRate)
}

func TestCollector_StopFlushes(t *testing.T) {
	_, rdb := setupTestRedis(t)
	c := NewClientFromRedis(rdb, "listener-a")
	col := NewCollector(c, time.Hour, nil)

	col.Record(3, 3, minute)
	col.Stop()

	totals, err := c.GetTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.TotalValid)
}

func TestCollector_FailedFlushIsRetained(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	c := NewClientFromRedis(rdb, "listener-a")
	col := NewCollector(c, time.Hour, nil)
	defer col.Stop()

	col.Record(5, 4, minute)

	mr.SetError("LOADING")
	col.FlushNow()
	received, valid := col.Pending()
	assert.Equal(t, int64(5), received)
	assert.Equal(t, int64(4), valid)

	mr.SetError("")
	col.FlushNow()
	received, _ = col.Pending()
	assert.Zero(t, received)
}

func TestCollector_PeriodicFlush(t *testing.T) {
	_, rdb := setupTestRedis(t)
	c := NewClientFromRedis(rdb, "listener-a")
	col := NewCollector(c, 10*time.Millisecond, nil)
	defer col.Stop()

	col.Record(2, 1, minute)

	require.Eventually(t, func() bool {
		totals, err := c.GetTotals(context.Background())
		return err == nil && totals.TotalReceived == 2
	}, 2*time.Second, 10*time.Millisecond)
}
