package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khushi89012/syook/common/messaging"
	"github.com/khushi89012/syook/listener/internal/models"
	"github.com/khushi89012/syook/listener/internal/repository"
)

type fixedStats models.Stats

func (f fixedStats) Stats() models.Stats { return models.Stats(f) }

type fakeCluster struct {
	totals models.Stats
	err    error
}

func (f fakeCluster) Totals(ctx context.Context) (models.Stats, error) { return f.totals, f.err }

// downStore fails every call with a persistence error.
type downStore struct{}

func (downStore) GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error) {
	return nil, repository.ErrPersistence
}

func (downStore) ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error) {
	return nil, repository.ErrPersistence
}

func (downStore) Ping(ctx context.Context) error {
	return errors.Join(repository.ErrPersistence, errors.New("dial tcp: connection refused"))
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)
	mux.HandleFunc("/stats", h.Stats)
	mux.HandleFunc("/buckets", h.List)
	mux.HandleFunc("/buckets/{minute}", h.Bucket)
	return mux
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestHealth(t *testing.T) {
	h := NewHandler(fixedStats{}, repository.NewMemoryStore(), 9000, nil)
	rr := do(t, newMux(h), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","tcp_port":9000}`, rr.Body.String())
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := NewHandler(fixedStats{}, repository.NewMemoryStore(), 9000, nil)
	rr := do(t, newMux(h), http.MethodPost, "/healthz")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodGet, rr.Header().Get("Allow"))
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		store      BucketReader
		wantStatus int
		wantBody   string
	}{
		{
			name:       "store reachable",
			store:      repository.NewMemoryStore(),
			wantStatus: http.StatusOK,
			wantBody:   `"ready"`,
		},
		{
			name:       "store down",
			store:      downStore{},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `connection refused`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(fixedStats{}, tt.store, 9000, nil)
			rr := do(t, newMux(h), http.MethodGet, "/readyz")

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}

type fakeBroker struct {
	connected bool
}

func (f fakeBroker) Publish(ctx context.Context, subject string, data []byte, opts ...messaging.PublishOption) error {
	return nil
}

func (f fakeBroker) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, nil
}

func (f fakeBroker) Close() error { return nil }
func (f fakeBroker) Drain() error { return nil }
func (f fakeBroker) IsConnected() bool { return f.connected }

func TestReady_ReportsBroker(t *testing.T) {
	h := NewHandler(fixedStats{}, repository.NewMemoryStore(), 9000, nil).WithBroker(fakeBroker{connected: false})
	rr := do(t, newMux(h), http.MethodGet, "/readyz")

	// A disconnected broker is reported but does not fail readiness.
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Broker)
	assert.False(t, resp.Broker.Connected)
	assert.Equal(t, "not connected to message broker", resp.Broker.Error)
}

func TestStats(t *testing.T) {
	local := fixedStats(models.NewStats(3, 2))

	t.Run("local only", func(t *testing.T) {
		h := NewHandler(local, repository.NewMemoryStore(), 9000, nil)
		rr := do(t, newMux(h), http.MethodGet, "/stats")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"totalReceived":3,"totalValid":2,"successRate":66.67}`, rr.Body.String())
	})

	t.Run("with cluster", func(t *testing.T) {
		h := NewHandler(local, repository.NewMemoryStore(), 9000, nil).
			WithCluster(fakeCluster{totals: models.NewStats(10, 5)})
		rr := do(t, newMux(h), http.MethodGet, "/stats")

		assert.JSONEq(t, `{"totalReceived":3,"totalValid":2,"successRate":66.67,
			"cluster":{"totalReceived":10,"totalValid":5,"successRate":50}}`, rr.Body.String())
	})

	t.Run("cluster unavailable", func(t *testing.T) {
		h := NewHandler(local, repository.NewMemoryStore(), 9000, nil).
			WithCluster(fakeCluster{err: errors.New("redis down")})
		rr := do(t, newMux(h), http.MethodGet, "/stats")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "cluster")
	})
}

func TestBucket(t *testing.T) {
	store := repository.NewMemoryStore()
	minute := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	_, err := store.UpsertBucket(context.Background(), minute, []models.Reading{
		{Name: "Jack", Origin: "Bengaluru", Destination: "Mumbai", Timestamp: minute.Add(12 * time.Second)},
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		store      BucketReader
		path       string
		wantStatus int
	}{
		{name: "found", store: store, path: "/buckets/2024-01-01T10:15:00Z", wantStatus: http.StatusOK},
		{name: "seconds are floored", store: store, path: "/buckets/2024-01-01T10:15:42Z", wantStatus: http.StatusOK},
		{name: "offset timestamp", store: store, path: "/buckets/2024-01-01T15:45:00+05:30", wantStatus: http.StatusOK},
		{name: "missing", store: store, path: "/buckets/2024-01-01T10:16:00Z", wantStatus: http.StatusNotFound},
		{name: "bad minute", store: store, path: "/buckets/yesterday", wantStatus: http.StatusBadRequest},
		{name: "store down", store: downStore{}, path: "/buckets/2024-01-01T10:15:00Z", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(fixedStats{}, tt.store, 9000, nil)
			rr := do(t, newMux(h), http.MethodGet, tt.path)
			assert.Equal(t, tt.wantStatus, rr.Code)

			if tt.wantStatus == http.StatusOK {
				var b models.MinuteBucket
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
				assert.True(t, minute.Equal(b.Minute))
				require.Len(t, b.Records, 1)
				assert.Equal(t, "Jack", b.Records[0].Name)
			}
		})
	}
}

func TestList(t *testing.T) {
	store := repository.NewMemoryStore()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.UpsertBucket(context.Background(), base.Add(time.Duration(i)*time.Minute), []models.Reading{{Name: "x"}})
		require.NoError(t, err)
	}
	h := NewHandler(fixedStats{}, store, 9000, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{name: "whole range", query: "?from=2024-01-01T10:00:00Z&to=2024-01-01T11:00:00Z", wantStatus: http.StatusOK, wantCount: 3},
		{name: "to is exclusive", query: "?from=2024-01-01T10:00:00Z&to=2024-01-01T10:02:00Z", wantStatus: http.StatusOK, wantCount: 2},
		{name: "empty range", query: "?from=2024-01-02T10:00:00Z&to=2024-01-02T11:00:00Z", wantStatus: http.StatusOK, wantCount: 0},
		{name: "reversed", query: "?from=2024-01-01T11:00:00Z&to=2024-01-01T10:00:00Z", wantStatus: http.StatusBadRequest},
		{name: "too wide", query: "?from=2024-01-01T00:00:00Z&to=2024-01-03T00:00:00Z", wantStatus: http.StatusBadRequest},
		{name: "bad from", query: "?from=nope", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, newMux(h), http.MethodGet, "/buckets"+tt.query)
			require.Equal(t, tt.wantStatus, rr.Code)

			if tt.wantStatus == http.StatusOK {
				var resp ListResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantCount, resp.Count)
				assert.Len(t, resp.Buckets, tt.wantCount)
			}
		})
	}
}
