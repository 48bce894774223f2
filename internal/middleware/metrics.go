package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// Documentation metrics
	DocsBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docs_build_duration_seconds",
			Help:    "Duration of documentation builds for a single version",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	DocsBuildErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docs_build_errors_total",
			Help: "Total number of failed documentation builds",
		},
	)

	DocsSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docs_sync_duration_seconds",
			Help:    "Duration of project map refreshes",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	DocsSyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docs_sync_errors_total",
			Help: "Total number of failed project map refreshes",
		},
	)

	DocsProjectsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docs_projects_total",
			Help: "Number of projects discovered in the organization",
		},
	)

	DocsDocumentedProjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docs_documented_projects",
			Help: "Number of projects with at least one documented version",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// Record request size
		if r.ContentLength > 0 {
			httpRequestSize.WithLabelValues(r.Method, normalizePath(r.URL.Path)).Observe(float64(r.ContentLength))
		}

		next.ServeHTTP(ww, r)

		// Record metrics
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(ww.BytesWritten()))
	})
}

// normalizePath normalizes URL paths for metrics labels
// This prevents cardinality explosion from dynamic path segments
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/docs/"):
		return "/v1/docs/{project}/*"
	case strings.HasPrefix(path, "/v1/projects/"):
		return "/v1/projects/{project}"
	default:
		return path
	}
}

// projectOf returns the project segment of docs and project routes
func projectOf(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/docs/")
	if !ok {
		rest, ok = strings.CutPrefix(path, "/v1/projects/")
	}
	if !ok {
		return ""
	}
	project, _, _ := strings.Cut(rest, "/")
	return project
}
