// Package router wires up the ingestion API routes and applies the
// middleware chain (RequestID, metrics, CORS, optional auth and rate
// limiting, request timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/handler"
	ingmw "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/middleware"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/middleware"
)

// Options carries the optional pieces of the chain. Auth and rate limiting
// are only applied when a Validator is present; RequestTimeout of zero
// disables the timeout wrapper.
type Options struct {
	KeyValidator   *apikey.Validator
	RateLimiter    *ratelimit.Limiter
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// New builds the full ingestion HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/documents     → upload a document, 202 + job id
//	GET    /api/v1/jobs/{id}     → job status record
//	GET    /api/v1/queue/stats   → per-lane depths and worker counters
//	DELETE /api/v1/queue         → clear one lane (?lane=) or all lanes
//	GET    /health/live          → liveness probe
//	GET    /health/ready         → readiness probe
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → Auth → RateLimit → Timeout → handler
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	// Document API
	mux.HandleFunc("POST /api/v1/documents", h.Upload)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.JobStatus)

	// Queue API
	mux.HandleFunc("GET /api/v1/queue/stats", h.QueueStats)
	mux.HandleFunc("DELETE /api/v1/queue", h.ClearQueue)

	// Health (unauthenticated)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.KeyValidator != nil {
		if opts.RateLimiter != nil {
			chain = ingmw.RateLimit(opts.RateLimiter)(chain)
		}
		chain = ingmw.Auth(opts.KeyValidator)(chain)
	}
	chain = ingmw.CORS(ingmw.DefaultCORSConfig())(chain)
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
