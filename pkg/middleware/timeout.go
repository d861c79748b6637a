package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
)

// Timeout bounds every request by the given duration. The handler runs with
// a deadline on its context; if it has not produced a response when the
// deadline hits, the client gets a 504 and whatever the handler writes
// afterwards is discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			lw := &latchWriter{inner: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				defer func() {
					if rec := recover(); rec != nil {
						logger.FromContext(ctx).Error("handler panicked",
							"method", r.Method,
							"path", r.URL.Path,
							"panic", rec,
						)
						lw.reply(http.StatusInternalServerError, `{"error":"internal error"}`)
					}
				}()
				next.ServeHTTP(lw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if lw.reply(http.StatusGatewayTimeout, `{"error":"request deadline exceeded"}`) {
					logger.FromContext(ctx).Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", timeout,
					)
				}
			}
		})
	}
}

// latchWriter serialises access to the underlying ResponseWriter and latches
// after the first write, so a late handler cannot corrupt the timeout
// response already on the wire.
type latchWriter struct {
	inner http.ResponseWriter
	mu    sync.Mutex
	wrote bool
	dead  bool
}

func (lw *latchWriter) Header() http.Header {
	return lw.inner.Header()
}

func (lw *latchWriter) WriteHeader(code int) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.dead {
		return
	}
	lw.wrote = true
	lw.inner.WriteHeader(code)
}

func (lw *latchWriter) Write(b []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.dead {
		return len(b), nil
	}
	lw.wrote = true
	return lw.inner.Write(b)
}

// reply writes an error response if the handler has not written yet, then
// cuts the handler off from the connection. Returns whether it won the race.
func (lw *latchWriter) reply(code int, body string) bool {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.wrote || lw.dead {
		lw.dead = true
		return false
	}
	lw.dead = true
	lw.inner.Header().Set("Content-Type", "application/json")
	lw.inner.WriteHeader(code)
	lw.inner.Write([]byte(body))
	return true
}
