package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/khushi89012/syook/common/database"
	"github.com/khushi89012/syook/listener/internal/models"
)

// OpenSearchConfig holds connection settings for the OpenSearch backend.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	Index         string
}

// OpenSearchStore keeps one document per minute, id = minute in RFC 3339.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
	now    func() time.Time
}

// retryOnConflict lets concurrent appends to one document retry server side.
const retryOnConflict = 10

// appendScript runs only when the document already exists; otherwise the
// upsert body is indexed as is.
const appendScript = `ctx._source.records.addAll(params.records); ` +
	`ctx._source.record_count += params.records.size(); ` +
	`ctx._source.updated_at = params.now;`

func NewOpenSearchStore(cfg OpenSearchConfig) (*OpenSearchStore, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchStore{client: client, index: cfg.Index, now: time.Now}, nil
}

// EnsureIndex creates the bucket index with its mapping if it does not exist.
func (s *OpenSearchStore) EnsureIndex(ctx context.Context) error {
	ctx, cancel := database.ConnectContext(ctx)
	defer cancel()

	exists, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: check index: %v", ErrPersistence, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping)
	if err != nil {
		return err
	}
	res, err := s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", ErrPersistence, err)
	}
	defer res.Body.Close()

	// Another listener may have created it between the two calls.
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("%w: create index: %s", ErrPersistence, res.String())
	}
	return nil
}

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"minute":       map[string]any{"type": "date"},
			"record_count": map[string]any{"type": "integer"},
			"created_at":   map[string]any{"type": "date"},
			"updated_at":   map[string]any{"type": "date"},
			"records": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "keyword"},
					"origin":      map[string]any{"type": "keyword"},
					"destination": map[string]any{"type": "keyword"},
					"timestamp":   map[string]any{"type": "date"},
				},
			},
		},
	},
}

// bucketDoc is the stored document shape.
type bucketDoc struct {
	Minute      time.Time        `json:"minute"`
	Records     []models.Reading `json:"records"`
	RecordCount int              `json:"record_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (s *OpenSearchStore) UpsertBucket(ctx context.Context, minute time.Time, records []models.Reading) (*UpsertResult, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	minute = minuteKey(minute)
	now := s.now().UTC()
	if records == nil {
		records = []models.Reading{}
	}

	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"lang":   "painless",
			"source": appendScript,
			"params": map[string]any{"records": records, "now": now},
		},
		"upsert": bucketDoc{
			Minute:      minute,
			Records:     records,
			RecordCount: len(records),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode upsert: %v", ErrPersistence, err)
	}

	res, err := s.client.Update(s.index, docID(minute), bytes.NewReader(body),
		s.client.Update.WithContext(ctx),
		s.client.Update.WithRetryOnConflict(retryOnConflict),
		s.client.Update.WithSource("record_count"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert bucket: %v", ErrPersistence, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: upsert bucket: %s", ErrPersistence, res.String())
	}

	var out struct {
		Result string `json:"result"`
		Get    struct {
			Source struct {
				RecordCount int `json:"record_count"`
			} `json:"_source"`
		} `json:"get"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode upsert response: %v", ErrPersistence, err)
	}

	return &UpsertResult{
		Minute:      minute,
		Created:     out.Result == "created",
		RecordCount: out.Get.Source.RecordCount,
	}, nil
}

func (s *OpenSearchStore) GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	res, err := s.client.Get(s.index, docID(minuteKey(minute)), s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: get bucket: %v", ErrPersistence, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrBucketNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: get bucket: %s", ErrPersistence, res.String())
	}

	var out struct {
		Found  bool      `json:"found"`
		Source bucketDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode bucket: %v", ErrPersistence, err)
	}
	if !out.Found {
		return nil, ErrBucketNotFound
	}
	return out.Source.toBucket(), nil
}

// maxListedBuckets is one day of minutes.
const maxListedBuckets = 1440

func (s *OpenSearchStore) ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"minute": map[string]any{
					"gte": from.UTC().Format(time.RFC3339),
					"lt":  to.UTC().Format(time.RFC3339),
				},
			},
		},
		"sort": []map[string]any{{"minute": map[string]any{"order": "asc"}}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
		s.client.Search.WithSize(maxListedBuckets),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search buckets: %v", ErrPersistence, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: search buckets: %s", ErrPersistence, res.String())
	}

	var out struct {
		Hits struct {
			Hits []struct {
				Source bucketDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrPersistence, err)
	}

	buckets := make([]models.MinuteBucket, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		buckets = append(buckets, *hit.Source.toBucket())
	}
	return buckets, nil
}

func (s *OpenSearchStore) Ping(ctx context.Context) error {
	ctx, cancel := database.ConnectContext(ctx)
	defer cancel()

	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.IsError() {
		return fmt.Errorf("%w: ping: %s", ErrPersistence, res.Status())
	}
	return nil
}

// Close is a no-op; the HTTP transport holds no long-lived state to release.
func (s *OpenSearchStore) Close() {}

func docID(minute time.Time) string {
	return minute.Format(time.RFC3339)
}

func (d bucketDoc) toBucket() *models.MinuteBucket {
	return &models.MinuteBucket{
		Minute:    d.Minute.UTC(),
		Records:   d.Records,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
