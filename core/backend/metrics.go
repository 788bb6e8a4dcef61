package backend

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbase_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classbase_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	recordOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbase_record_operations_total",
			Help: "Total number of record operations by class",
		},
		[]string{"class", "operation"},
	)

	sessionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classbase_sessions_issued_total",
			Help: "Total number of issued sessions",
		},
	)
)

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// handleMetrics installs the request metrics middleware and the
// /metrics route. The route template keeps the label cardinality
// bounded.
func (b *Backend) handleMetrics() {
	metricsMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
			h.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = template
				}
			}
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
	b.router.Use(metricsMiddleware)
	b.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodOptions, http.MethodGet)
}
