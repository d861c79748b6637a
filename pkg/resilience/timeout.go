package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/errors"
)

// WithTimeout bounds fn by a deadline. The function receives a derived
// context and should stop when it is cancelled; if it keeps running anyway,
// WithTimeout returns without waiting for it. Deadline hits come back
// wrapping the pipeline's timeout sentinel so handlers map them to 503. A
// non-positive timeout runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(bounded)
	}()

	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", name, err)
		}
		return fmt.Errorf("%s did not finish within %v: %w", name, timeout, apperrors.ErrTimeout)
	}
}
