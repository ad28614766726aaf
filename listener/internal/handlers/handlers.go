// Package handlers serves the listener's HTTP status surface.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/khushi89012/syook/common/httputil"
	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/common/messaging"
	"github.com/khushi89012/syook/listener/internal/models"
	"github.com/khushi89012/syook/listener/internal/repository"
)

// MaxListRange bounds GET /buckets queries.
const MaxListRange = 24 * time.Hour

// StatsSource reports this process's running totals.
type StatsSource interface {
	Stats() models.Stats
}

// ClusterStats reports totals across every listener instance.
type ClusterStats interface {
	Totals(ctx context.Context) (models.Stats, error)
}

// BucketReader is the read side of the bucket store.
type BucketReader interface {
	GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error)
	ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	stats   StatsSource
	cluster ClusterStats
	broker  messaging.Client
	store   BucketReader
	tcpPort int
	logger  *logging.Logger
}

func NewHandler(stats StatsSource, store BucketReader, tcpPort int, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{stats: stats, store: store, tcpPort: tcpPort, logger: logger}
}

// WithCluster adds cluster-wide totals to GET /stats.
func (h *Handler) WithCluster(c ClusterStats) *Handler {
	h.cluster = c
	return h
}

// WithBroker adds the message broker's connection state to GET /readyz.
// The broker does not gate readiness; events are best effort.
func (h *Handler) WithBroker(c messaging.Client) *Handler {
	h.broker = c
	return h
}

type HealthResponse struct {
	Status  string `json:"status"`
	TCPPort int    `json:"tcp_port"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", TCPPort: h.tcpPort})
}

type ReadyResponse struct {
	Status string                  `json:"status"`
	Error  string                  `json:"error,omitempty"`
	Broker *messaging.HealthStatus `json:"broker,omitempty"`
}

// Ready reports whether the bucket store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var broker *messaging.HealthStatus
	if h.broker != nil {
		status := messaging.CheckClientHealth(h.broker)
		broker = &status
	}

	if err := h.store.Ping(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready", Error: err.Error(), Broker: broker})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Broker: broker})
}

type StatsResponse struct {
	models.Stats
	Cluster *models.Stats `json:"cluster,omitempty"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	resp := StatsResponse{Stats: h.stats.Stats()}
	if h.cluster != nil {
		totals, err := h.cluster.Totals(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "cluster stats unavailable", logging.Error(err))
		} else {
			resp.Cluster = &totals
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Bucket serves GET /buckets/{minute}; minute is RFC 3339 and may carry seconds.
func (h *Handler) Bucket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	minute, err := time.Parse(time.RFC3339, r.PathValue("minute"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "minute must be an RFC 3339 timestamp")
		return
	}

	b, err := h.store.GetBucket(r.Context(), minute)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

type ListResponse struct {
	Buckets []models.MinuteBucket `json:"buckets"`
	Count   int                   `json:"count"`
}

// List serves GET /buckets?from=&to= with from <= minute < to.
// to defaults to now and from to one hour before to.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	to := time.Now().UTC()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		to = t
	}
	from := to.Add(-time.Hour)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		from = t
	}

	if !from.Before(to) {
		httputil.WriteError(w, http.StatusBadRequest, "from must be before to")
		return
	}
	if to.Sub(from) > MaxListRange {
		httputil.WriteError(w, http.StatusBadRequest, "range must not exceed 24h")
		return
	}

	buckets, err := h.store.ListBuckets(r.Context(), from, to)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []models.MinuteBucket{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Buckets: buckets, Count: len(buckets)})
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrBucketNotFound):
		httputil.WriteError(w, http.StatusNotFound, "bucket not found")
	case errors.Is(err, repository.ErrPersistence):
		h.logger.WarnContext(r.Context(), "bucket store unavailable", logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "bucket lookup failed", logging.Error(err), logging.Path(r.URL.Path))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
