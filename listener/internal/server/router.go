package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khushi89012/syook/common/middleware"
	"github.com/khushi89012/syook/listener/internal/handlers"
)

// NewRouter constructs a ServeMux with the status routes registered.
func NewRouter(h *handlers.Handler, cors middleware.CORSConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	mux.HandleFunc("/stats", h.Stats)
	mux.HandleFunc("/buckets", h.List)
	mux.HandleFunc("/buckets/{minute}", h.Bucket)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.AccessLog(logger)(handler)
	handler = middleware.CORS(cors)(handler)
	return middleware.RequestID(handler)
}
