// Package middleware provides the HTTP middleware shared by the pipeline's
// services: request ids, Prometheus instrumentation, and request deadlines.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
)

// routeTemplates collapses per-entity URLs into their route patterns so
// metric label cardinality stays bounded no matter how many jobs exist.
var routeTemplates = []struct {
	prefix   string
	template string
}{
	{"/api/v1/jobs/", "/api/v1/jobs/{id}"},
	{"/api/v1/history/", "/api/v1/history/{id}"},
}

// Metrics instruments every request with a count, a latency observation, and
// an in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter captures the first status code written; later writes keep it.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

func normalizePath(path string) string {
	for _, rt := range routeTemplates {
		if strings.HasPrefix(path, rt.prefix) && len(path) > len(rt.prefix) {
			return rt.template
		}
	}
	return path
}
