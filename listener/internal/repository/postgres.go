package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushi89012/syook/common/database"
	"github.com/khushi89012/syook/listener/internal/models"
)

// PostgresStore keeps one row per minute in minute_buckets.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 16
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	connectCtx, cancel := database.ConnectContext(ctx)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: create connection pool: %v", ErrPersistence, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrPersistence, err)
	}

	return &PostgresStore{pool: pool}, nil
}

// The append happens inside the ON CONFLICT branch, so two writers for the
// same minute serialize on the row lock instead of racing a read.
// xmax = 0 only for a freshly inserted row.
const upsertBucketSQL = `
	INSERT INTO minute_buckets (minute, records, record_count, created_at, updated_at)
	VALUES ($1, $2::jsonb, $3, NOW(), NOW())
	ON CONFLICT (minute) DO UPDATE SET
		records      = minute_buckets.records || EXCLUDED.records,
		record_count = minute_buckets.record_count + EXCLUDED.record_count,
		updated_at   = NOW()
	RETURNING (xmax = 0) AS inserted, record_count
`

func (s *PostgresStore) UpsertBucket(ctx context.Context, minute time.Time, records []models.Reading) (*UpsertResult, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	minute = minuteKey(minute)
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%w: encode records: %v", ErrPersistence, err)
	}

	var (
		inserted bool
		count    int
	)
	err = s.pool.QueryRow(ctx, upsertBucketSQL, minute, string(payload), len(records)).Scan(&inserted, &count)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert bucket %s: %v", ErrPersistence, minute.Format(time.RFC3339), err)
	}

	return &UpsertResult{Minute: minute, Created: inserted, RecordCount: count}, nil
}

func (s *PostgresStore) GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT minute, records, created_at, updated_at
		FROM minute_buckets
		WHERE minute = $1
	`
	b, err := scanBucket(s.pool.QueryRow(ctx, query, minuteKey(minute)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBucketNotFound
		}
		return nil, fmt.Errorf("%w: get bucket: %v", ErrPersistence, err)
	}
	return b, nil
}

func (s *PostgresStore) ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT minute, records, created_at, updated_at
		FROM minute_buckets
		WHERE minute >= $1 AND minute < $2
		ORDER BY minute ASC
	`
	rows, err := s.pool.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: list buckets: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var buckets []models.MinuteBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan bucket: %v", ErrPersistence, err)
		}
		buckets = append(buckets, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list buckets: %v", ErrPersistence, err)
	}
	return buckets, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := database.ConnectContext(ctx)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanBucket(row pgx.Row) (*models.MinuteBucket, error) {
	var (
		b   models.MinuteBucket
		raw []byte
	)
	if err := row.Scan(&b.Minute, &raw, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &b.Records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	b.Minute = b.Minute.UTC()
	return &b, nil
}
