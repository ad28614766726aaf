// Package stats keeps ingestion totals in Redis so several listener
// instances can report cluster-wide numbers.
//
// Redis key structure:
//
//	ts:stats:totals               - Hash {received, valid} across all instances
//	ts:stats:instance:{id}        - Hash {received, valid, last_seen} for one instance
//	ts:stats:instances            - Hash instance id -> last seen unix time
//	ts:minute:{YYYYMMDDHHMM}      - Valid record count for one minute (expires 48h)
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khushi89012/syook/listener/internal/models"
)

const (
	totalsKey    = "ts:stats:totals"
	instancesKey = "ts:stats:instances"

	fieldReceived = "received"
	fieldValid    = "valid"
	fieldLastSeen = "last_seen"

	minuteTTL = 48 * time.Hour
)

func instanceKey(id string) string {
	return "ts:stats:instance:" + id
}

func minuteKey(t time.Time) string {
	return "ts:minute:" + t.UTC().Format("200601021504")
}

// Client reads and writes ingestion totals.
type Client struct {
	redis      *redis.Client
	instanceID string
}

// NewClient connects to Redis. instanceID should be unique per listener
// (hostname, pod name).
func NewClient(redisURL string, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, instanceID), nil
}

// NewClientFromRedis creates a client from an existing Redis connection.
func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{redis: client, instanceID: instanceID}
}

// BatchUpdate holds totals accumulated between flushes.
type BatchUpdate struct {
	Received int64
	Valid    int64
	Minutes  map[time.Time]int64 // minute -> valid records
}

func NewBatchUpdate() *BatchUpdate {
	return &BatchUpdate{Minutes: make(map[time.Time]int64)}
}

// Add accumulates one processed batch.
func (b *BatchUpdate) Add(received, valid int64, minute time.Time) {
	b.Received += received
	b.Valid += valid
	if valid > 0 {
		b.Minutes[minute.UTC().Truncate(time.Minute)] += valid
	}
}

// Merge folds other into b.
func (b *BatchUpdate) Merge(other *BatchUpdate) {
	b.Received += other.Received
	b.Valid += other.Valid
	for m, n := range other.Minutes {
		b.Minutes[m] += n
	}
}

func (b *BatchUpdate) Empty() bool {
	return b.Received == 0 && b.Valid == 0
}

// FlushBatch writes a batch in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *BatchUpdate) error {
	if batch.Empty() {
		return nil
	}

	nowUnix := strconv.FormatInt(time.Now().Unix(), 10)
	pipe := c.redis.Pipeline()

	pipe.HIncrBy(ctx, totalsKey, fieldReceived, batch.Received)
	pipe.HIncrBy(ctx, totalsKey, fieldValid, batch.Valid)

	ik := instanceKey(c.instanceID)
	pipe.HIncrBy(ctx, ik, fieldReceived, batch.Received)
	pipe.HIncrBy(ctx, ik, fieldValid, batch.Valid)
	pipe.HSet(ctx, ik, fieldLastSeen, nowUnix)

	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)

	for minute, n := range batch.Minutes {
		key := minuteKey(minute)
		pipe.IncrBy(ctx, key, n)
		pipe.Expire(ctx, key, minuteTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush stats: %w", err)
	}
	return nil
}

// GetTotals returns the cluster-wide totals.
func (c *Client) GetTotals(ctx context.Context) (models.Stats, error) {
	return c.readTotals(ctx, totalsKey)
}

// GetInstanceTotals returns the totals flushed by this instance.
func (c *Client) GetInstanceTotals(ctx context.Context) (models.Stats, error) {
	return c.readTotals(ctx, instanceKey(c.instanceID))
}

func (c *Client) readTotals(ctx context.Context, key string) (models.Stats, error) {
	vals, err := c.redis.HMGet(ctx, key, fieldReceived, fieldValid).Result()
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}

	received, err := parseCount(vals[0])
	if err != nil {
		return models.Stats{}, err
	}
	valid, err := parseCount(vals[1])
	if err != nil {
		return models.Stats{}, err
	}
	return models.NewStats(received, valid), nil
}

func parseCount(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected stats value %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// GetMinuteCount returns the valid records counted for minute across the cluster.
func (c *Client) GetMinuteCount(ctx context.Context, minute time.Time) (int64, error) {
	n, err := c.redis.Get(ctx, minuteKey(minute)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read minute count: %w", err)
	}
	return n, nil
}

// GetInstances returns every instance that has flushed, with its last flush time.
func (c *Client) GetInstances(ctx context.Context) (map[string]time.Time, error) {
	vals, err := c.redis.HGetAll(ctx, instancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	out := make(map[string]time.Time, len(vals))
	for id, v := range vals {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[id] = time.Unix(ts, 0).UTC()
	}
	return out, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
