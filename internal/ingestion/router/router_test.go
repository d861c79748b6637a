package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue/queuetest"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/router"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/health"
)

// newTestServer builds the full chain against an in-memory store. The worker
// pool is never started; these tests exercise routing and middleware order,
// not job processing.
func newTestServer(t *testing.T, opts router.Options) *httptest.Server {
	t.Helper()

	store := queuetest.NewMemStore()
	q := queue.New(store, config.QueueConfig{
		ConnectTimeout: 50 * time.Millisecond,
		DequeueTimeout: 10 * time.Millisecond,
		StatusTTL:      24 * time.Hour,
		IdempotencyTTL: time.Hour,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
	}, nil)

	o := orchestrator.New(q, func(ctx context.Context, cmd *ingestion.UploadCommand, report ingestion.ProgressFunc) (*ingestion.ProcessResult, error) {
		return &ingestion.ProcessResult{}, nil
	}, events.NewPublisher(nil, nil), nil, config.OrchestratorConfig{Workers: 1}, config.TracingConfig{})

	checker := health.NewChecker()
	checker.RegisterPing("job-store", false, store.Ping)

	srv := httptest.NewServer(router.New(handler.New(o, q, 0), checker, opts))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// gatedOptions configures the chain with key auth enabled. The validator's
// database is nil, which is safe here: every request in these tests is
// rejected or exempted before a key lookup happens.
func gatedOptions() router.Options {
	return router.Options{KeyValidator: apikey.NewValidator(nil, time.Minute)}
}

// TestNoValidatorMeansOpenAccess verifies that without a configured key
// validator the API answers anonymous requests.
func TestNoValidatorMeansOpenAccess(t *testing.T) {
	srv := newTestServer(t, router.Options{})

	if resp := get(t, srv, "/api/v1/queue/stats"); resp.StatusCode != http.StatusOK {
		t.Errorf("anonymous stats request status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

// TestValidatorGatesAPIRoutes verifies that configuring a validator turns
// anonymous API requests into 401s.
func TestValidatorGatesAPIRoutes(t *testing.T) {
	srv := newTestServer(t, gatedOptions())

	if resp := get(t, srv, "/api/v1/queue/stats"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous stats request status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// TestHealthStaysOpenUnderAuth verifies probes need no credentials.
func TestHealthStaysOpenUnderAuth(t *testing.T) {
	srv := newTestServer(t, gatedOptions())

	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := get(t, srv, path); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

// TestPreflightBypassesAuth verifies CORS preflights are answered before the
// auth gate; browsers do not attach credentials to preflights.
func TestPreflightBypassesAuth(t *testing.T) {
	srv := newTestServer(t, gatedOptions())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/documents", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want request origin", got)
	}
}

// TestRequestIDOnEveryResponse verifies the outermost middleware stamps a
// request id and reuses a caller-provided one.
func TestRequestIDOnEveryResponse(t *testing.T) {
	srv := newTestServer(t, router.Options{})

	if resp := get(t, srv, "/health/live"); resp.Header.Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health/live", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-7")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /health/live failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-7" {
		t.Errorf("X-Request-ID = %q, want echoed req-7", got)
	}
}
