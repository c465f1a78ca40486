package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	clientCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efile_client_calls_total",
			Help: "Calls made to the portal API by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	clientCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efile_client_call_duration_seconds",
			Help:    "Portal API call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	submissionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efile_submission_transitions_total",
			Help: "Submission lifecycle transitions by resulting status.",
		},
		[]string{"status"},
	)

	initOnce sync.Once
)

// Init registers the metrics in the default registry. Safe to call more than
// once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			clientCallsTotal,
			clientCallDuration,
			submissionTransitions,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveClientCall records one portal API call.
func ObserveClientCall(operation, outcome string, d time.Duration) {
	clientCallsTotal.WithLabelValues(operation, outcome).Inc()
	clientCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// CountTransition records a submission entering status.
func CountTransition(status string) {
	submissionTransitions.WithLabelValues(status).Inc()
}

// Instrument measures in-flight requests, totals and latency per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// idSegments lists the path prefixes whose next segment is an identifier.
var idSegments = [][]string{
	{"templates"},
	{"admin", "submissions"},
	{"admin", "users"},
	{"users", "profile"},
}

var fixedTemplatePaths = map[string]bool{
	"types":        true,
	"count":        true,
	"download-log": true,
}

// CanonicalPath collapses identifiers so metric label cardinality stays
// bounded. A leading /api segment is kept but ignored when matching.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	rest := parts
	if rest[0] == "api" {
		rest = rest[1:]
	}
	if len(rest) > 1 && rest[0] == "files" {
		n := len(parts) - len(rest) + 1
		return "/" + strings.Join(append(parts[:n:n], ":key"), "/")
	}
	for _, prefix := range idSegments {
		if len(rest) <= len(prefix) || !hasPrefix(rest, prefix) {
			continue
		}
		idx := len(prefix)
		if prefix[0] == "templates" && fixedTemplatePaths[rest[idx]] {
			break
		}
		rest[idx] = ":id"
		break
	}
	return "/" + strings.Join(parts, "/")
}

func hasPrefix(parts, prefix []string) bool {
	for i, p := range prefix {
		if parts[i] != p {
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
