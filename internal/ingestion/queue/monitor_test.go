package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue/queuetest"
)

// TestDepthPollerLifecycle verifies the poller starts, samples without
// metrics, and shuts down when its context is cancelled.
func TestDepthPollerLifecycle(t *testing.T) {
	q, _ := newTestQueue(t, queuetest.NewMemStore())
	p := NewDepthPoller(q, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	p.Start(ctx)

	// Let a few samples run, then stop.
	time.Sleep(20 * time.Millisecond)
	cancel()

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

// TestDepthPollerSkipsDegradedStore verifies that a degraded queue is left
// alone instead of being probed every tick.
func TestDepthPollerSkipsDegradedStore(t *testing.T) {
	store := queuetest.NewMemStore()
	store.PingErr = errors.New("connection refused")
	q := New(store, testQueueConfig(), nil)

	p := NewDepthPoller(q, nil, time.Millisecond)
	ctx, cancel := context.WithCancel(t.Context())
	p.Start(ctx)

	time.Sleep(10 * time.Millisecond)
	cancel()
	p.Close()

	if n := store.Calls("LLen"); n != 0 {
		t.Errorf("degraded store sampled %d times, want 0", n)
	}
}

// TestDepthPollerDefaultInterval verifies the fallback sampling interval.
func TestDepthPollerDefaultInterval(t *testing.T) {
	q, _ := newTestQueue(t, queuetest.NewMemStore())

	p := NewDepthPoller(q, nil, 0)
	if p.interval != 15*time.Second {
		t.Errorf("interval = %v, want 15s", p.interval)
	}
}
