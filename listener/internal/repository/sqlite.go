package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/khushi89012/syook/common/database"
	"github.com/khushi89012/syook/listener/internal/models"
)

// SQLiteStore keeps buckets in a local SQLite file: one row per minute in
// minute_buckets plus one row per record in bucket_records, so an append
// never rewrites earlier records. The create, the count bump and the record
// inserts commit in one transaction.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS minute_buckets (
  minute       TEXT    PRIMARY KEY,   -- RFC 3339, UTC, whole minute
  record_count INTEGER NOT NULL,
  created_at   TEXT    NOT NULL,
  updated_at   TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS bucket_records (
  id      INTEGER PRIMARY KEY AUTOINCREMENT,
  minute  TEXT    NOT NULL REFERENCES minute_buckets(minute),
  payload TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS bucket_records_minute ON bucket_records(minute, id);
`

// NewSQLiteStore opens or creates the database at dsn and applies the schema.
// ":memory:" works for tests.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrPersistence, err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	connectCtx, cancel := database.ConnectContext(ctx)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", ErrPersistence, err)
	}

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(connectCtx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: set %s: %v", ErrPersistence, p, err)
		}
	}
	if _, err := db.ExecContext(connectCtx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrPersistence, err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) UpsertBucket(ctx context.Context, minute time.Time, records []models.Reading) (*UpsertResult, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	minute = minuteKey(minute)
	key := minute.Format(time.RFC3339)
	now := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO minute_buckets (minute, record_count, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(minute) DO NOTHING`,
		key, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create bucket %s: %v", ErrPersistence, key, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: create bucket %s: %v", ErrPersistence, key, err)
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		UPDATE minute_buckets
		SET record_count = record_count + ?, updated_at = ?
		WHERE minute = ?
		RETURNING record_count`,
		len(records), now, key,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert bucket %s: %v", ErrPersistence, key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bucket_records (minute, payload) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare append: %v", ErrPersistence, err)
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("%w: encode record: %v", ErrPersistence, err)
		}
		if _, err := stmt.ExecContext(ctx, key, string(payload)); err != nil {
			return nil, fmt.Errorf("%w: append record to %s: %v", ErrPersistence, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}

	return &UpsertResult{Minute: minute, Created: inserted == 1, RecordCount: count}, nil
}

func (s *SQLiteStore) GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	minute = minuteKey(minute)
	key := minute.Format(time.RFC3339)
	row := s.db.QueryRowContext(ctx,
		`SELECT minute, created_at, updated_at FROM minute_buckets WHERE minute = ?`, key)
	b, err := scanSQLiteBucket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBucketNotFound
		}
		return nil, fmt.Errorf("%w: get bucket: %v", ErrPersistence, err)
	}

	byMinute, err := s.records(ctx, key, minute.Add(time.Minute).Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	b.Records = byMinute[key]
	return b, nil
}

func (s *SQLiteStore) ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	// RFC 3339 UTC strings sort chronologically.
	lo, hi := from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx, `
		SELECT minute, created_at, updated_at
		FROM minute_buckets
		WHERE minute >= ? AND minute < ?
		ORDER BY minute ASC`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("%w: list buckets: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var buckets []models.MinuteBucket
	for rows.Next() {
		b, err := scanSQLiteBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan bucket: %v", ErrPersistence, err)
		}
		buckets = append(buckets, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list buckets: %v", ErrPersistence, err)
	}
	// Release the only connection before the records query.
	rows.Close()
	if len(buckets) == 0 {
		return nil, nil
	}

	byMinute, err := s.records(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	for i := range buckets {
		buckets[i].Records = byMinute[buckets[i].Minute.Format(time.RFC3339)]
	}
	return buckets, nil
}

// records loads the records of every bucket with lo <= minute < hi in append order.
func (s *SQLiteStore) records(ctx context.Context, lo, hi string) (map[string][]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT minute, payload
		FROM bucket_records
		WHERE minute >= ? AND minute < ?
		ORDER BY minute ASC, id ASC`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("%w: load records: %v", ErrPersistence, err)
	}
	defer rows.Close()

	out := make(map[string][]models.Reading)
	for rows.Next() {
		var minute, payload string
		if err := rows.Scan(&minute, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrPersistence, err)
		}
		var r models.Reading
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("%w: decode record: %v", ErrPersistence, err)
		}
		out[minute] = append(out[minute], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load records: %v", ErrPersistence, err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := database.ConnectContext(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBucket(row rowScanner) (*models.MinuteBucket, error) {
	var minute, createdAt, updatedAt string
	if err := row.Scan(&minute, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var b models.MinuteBucket
	var err error
	if b.Minute, err = time.Parse(time.RFC3339, minute); err != nil {
		return nil, fmt.Errorf("parse minute %q: %w", minute, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	b.Minute = b.Minute.UTC()
	return &b, nil
}
