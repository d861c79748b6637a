package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue/queuetest"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/errors"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		ConnectTimeout: 100 * time.Millisecond,
		DequeueTimeout: 25 * time.Millisecond,
		StatusTTL:      24 * time.Hour,
		IdempotencyTTL: time.Hour,
		MaxRetries:     3,
		BackoffBase:    time.Second,
	}
}

// newTestQueue builds a queue on an in-memory store with waits swapped out,
// recording every sleep it would have taken.
func newTestQueue(t *testing.T, store *queuetest.MemStore) (*JobQueue, *[]time.Duration) {
	t.Helper()
	q := New(store, testQueueConfig(), nil)
	if !q.Available() {
		t.Fatal("queue should be available with a healthy store")
	}
	var slept []time.Duration
	q.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return q, &slept
}

func jobData(fileName string) map[string]any {
	return map[string]any{"file_name": fileName}
}

// ---------------------------------------------------------------------------
// Lane mapping
// ---------------------------------------------------------------------------

// TestLaneForPriority verifies the priority-to-lane split: 1-3 high, 4-7
// medium, 8-10 low.
func TestLaneForPriority(t *testing.T) {
	cases := []struct {
		priority int
		want     Lane
	}{
		{1, LaneHigh},
		{2, LaneHigh},
		{3, LaneHigh},
		{4, LaneMedium},
		{5, LaneMedium},
		{7, LaneMedium},
		{8, LaneLow},
		{10, LaneLow},
		{42, LaneLow},
	}
	for _, c := range cases {
		if got := LaneForPriority(c.priority); got != c.want {
			t.Errorf("LaneForPriority(%d) = %s, want %s", c.priority, got, c.want)
		}
	}
}

// TestParseLane verifies lane names from user input.
func TestParseLane(t *testing.T) {
	for _, name := range []string{"high", "medium", "low"} {
		lane, ok := ParseLane(name)
		if !ok || string(lane) != name {
			t.Errorf("ParseLane(%q) = %q, %v", name, lane, ok)
		}
	}
	for _, name := range []string{"", "urgent", "HIGH", "mid"} {
		if _, ok := ParseLane(name); ok {
			t.Errorf("ParseLane(%q) should fail", name)
		}
	}
}

// ---------------------------------------------------------------------------
// Enqueue / dequeue
// ---------------------------------------------------------------------------

// TestDequeuePriorityOrder verifies that a dequeue sweep drains the high lane
// before medium and low, regardless of enqueue order.
func TestDequeuePriorityOrder(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.EnqueueJob(ctx, "job-low", "cmd-low", jobData("low.txt"), 9, ""); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if err := q.EnqueueJob(ctx, "job-med", "cmd-med", jobData("med.txt"), 5, ""); err != nil {
		t.Fatalf("enqueue medium: %v", err)
	}
	if err := q.EnqueueJob(ctx, "job-high", "cmd-high", jobData("high.txt"), 2, ""); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	for _, want := range []string{"job-high", "job-med", "job-low"} {
		entry := q.Dequeue(ctx, 0)
		if entry == nil {
			t.Fatalf("expected entry %s, got nil", want)
		}
		if entry.JobID != want {
			t.Errorf("dequeued %s, want %s", entry.JobID, want)
		}
	}
	if entry := q.Dequeue(ctx, 5*time.Millisecond); entry != nil {
		t.Errorf("empty queue returned entry %s", entry.JobID)
	}
}

// TestDequeueFIFOWithinLane verifies first-in, first-out order for jobs of
// equal priority.
func TestDequeueFIFOWithinLane(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	for _, id := range []string{"first", "second", "third"} {
		if err := q.EnqueueJob(ctx, id, "cmd-"+id, jobData(id+".txt"), 5, ""); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"first", "second", "third"} {
		entry := q.Dequeue(ctx, 0)
		if entry == nil || entry.JobID != want {
			t.Fatalf("dequeued %+v, want job %s", entry, want)
		}
	}
}

// TestEnqueueWritesPendingStatus verifies the initial status record and its
// retention.
func TestEnqueueWritesPendingStatus(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.EnqueueJob(ctx, "job-1", "cmd-1", jobData("doc.pdf"), 5, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	status := q.GetJobStatus(ctx, "job-1")
	if status == nil {
		t.Fatal("no status record after enqueue")
	}
	if status.Status != ingestion.StatePending {
		t.Errorf("status = %s, want %s", status.Status, ingestion.StatePending)
	}
	if status.CurrentStage != "Queued" {
		t.Errorf("stage = %q, want Queued", status.CurrentStage)
	}
	if status.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3 from config", status.MaxRetries)
	}
	if status.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	ttl, ok := store.TTL("ingestion:job:job-1")
	if !ok || ttl != 24*time.Hour {
		t.Errorf("status TTL = %v, %v; want 24h", ttl, ok)
	}
}

// TestEnqueueMergesExistingStatus verifies a re-enqueue keeps the retry
// bookkeeping from the previous attempt.
func TestEnqueueMergesExistingStatus(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.SetJobStatus(ctx, &ingestion.JobStatus{
		JobID:      "job-1",
		CommandID:  "cmd-1",
		Status:     ingestion.StateRetrying,
		RetryCount: 2,
		MaxRetries: 3,
	}); err != nil {
		t.Fatalf("seeding status: %v", err)
	}

	if err := q.EnqueueJob(ctx, "job-1", "cmd-1", jobData("doc.pdf"), 5, ""); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	status := q.GetJobStatus(ctx, "job-1")
	if status == nil {
		t.Fatal("no status record")
	}
	if status.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2 preserved across re-enqueue", status.RetryCount)
	}
	if status.Status != ingestion.StatePending {
		t.Errorf("status = %s, want %s", status.Status, ingestion.StatePending)
	}
}

// TestDequeueDropsMalformedEntry verifies that garbage on a lane is dropped
// rather than crashing the worker or wedging the lane.
func TestDequeueDropsMalformedEntry(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if _, err := store.LPush(ctx, "ingestion:queue:high", "{not json"); err != nil {
		t.Fatalf("seeding garbage: %v", err)
	}
	if entry := q.Dequeue(ctx, 0); entry != nil {
		t.Errorf("malformed entry should dequeue as nil, got %+v", entry)
	}
	if n := store.ListLen("ingestion:queue:high"); n != 0 {
		t.Errorf("lane still holds %d entries", n)
	}

	// The lane keeps working afterwards.
	if err := q.EnqueueJob(ctx, "job-ok", "cmd-ok", jobData("ok.txt"), 1, ""); err != nil {
		t.Fatalf("enqueue after garbage: %v", err)
	}
	entry := q.Dequeue(ctx, 0)
	if entry == nil || entry.JobID != "job-ok" {
		t.Fatalf("dequeued %+v, want job-ok", entry)
	}
}

// TestDequeueStoreErrorPauses verifies that a broken store costs one timeout's
// pause instead of a hot loop.
func TestDequeueStoreErrorPauses(t *testing.T) {
	store := queuetest.NewMemStore()
	q, slept := newTestQueue(t, store)
	store.BRPopErr = errors.New("connection reset")

	if entry := q.Dequeue(t.Context(), 40*time.Millisecond); entry != nil {
		t.Errorf("expected nil on store error, got %+v", entry)
	}
	if len(*slept) != 1 || (*slept)[0] != 40*time.Millisecond {
		t.Errorf("pause = %v, want one 40ms wait", *slept)
	}

	// A zero timeout falls back to the configured dequeue timeout.
	*slept = nil
	if entry := q.Dequeue(t.Context(), 0); entry != nil {
		t.Errorf("expected nil on store error, got %+v", entry)
	}
	if len(*slept) != 1 || (*slept)[0] != testQueueConfig().DequeueTimeout {
		t.Errorf("pause = %v, want the configured dequeue timeout", *slept)
	}
}

// ---------------------------------------------------------------------------
// Idempotency
// ---------------------------------------------------------------------------

// TestIdempotencyKeyRoundTrip verifies the key-to-job mapping and its TTL.
func TestIdempotencyKeyRoundTrip(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if got := q.CheckIdempotencyKey(ctx, "unknown"); got != "" {
		t.Errorf("unknown key resolved to %q", got)
	}
	if err := q.StoreIdempotencyKey(ctx, "req-abc", "job-1", 0); err != nil {
		t.Fatalf("storing key: %v", err)
	}
	if got := q.CheckIdempotencyKey(ctx, "req-abc"); got != "job-1" {
		t.Errorf("key resolved to %q, want job-1", got)
	}

	ttl, ok := store.TTL("ingestion:idempotency:req-abc")
	if !ok || ttl != time.Hour {
		t.Errorf("idempotency TTL = %v, %v; want the configured 1h default", ttl, ok)
	}

	// An explicit TTL overrides the configured default.
	if err := q.StoreIdempotencyKey(ctx, "req-short", "job-2", 5*time.Minute); err != nil {
		t.Fatalf("storing key with ttl: %v", err)
	}
	ttl, ok = store.TTL("ingestion:idempotency:req-short")
	if !ok || ttl != 5*time.Minute {
		t.Errorf("explicit TTL = %v, %v; want 5m", ttl, ok)
	}
}

// TestEnqueueDuplicateIdempotencyKey verifies that a key already mapping to a
// different job rejects the enqueue without touching the lanes.
func TestEnqueueDuplicateIdempotencyKey(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.EnqueueJob(ctx, "job-1", "cmd-1", jobData("a.txt"), 5, "req-abc"); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	err := q.EnqueueJob(ctx, "job-2", "cmd-2", jobData("b.txt"), 5, "req-abc")
	if !errors.Is(err, apperrors.ErrDuplicateRequest) {
		t.Fatalf("second enqueue error = %v, want ErrDuplicateRequest", err)
	}
	if apperrors.HTTPStatusCode(err) != 409 {
		t.Errorf("status code = %d, want 409", apperrors.HTTPStatusCode(err))
	}
	if n := q.Size(ctx); n != 1 {
		t.Errorf("queue size = %d after rejected duplicate, want 1", n)
	}

	// The same job re-enqueueing under its own key is legitimate (retries).
	if err := q.EnqueueJob(ctx, "job-1", "cmd-1", jobData("a.txt"), 5, "req-abc"); err != nil {
		t.Errorf("re-enqueue under own key: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Status records
// ---------------------------------------------------------------------------

// TestSetJobStatusDefaults verifies MaxRetries defaulting and the UpdatedAt
// stamp.
func TestSetJobStatusDefaults(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.SetJobStatus(ctx, &ingestion.JobStatus{JobID: "job-1", Status: ingestion.StatePending}); err != nil {
		t.Fatalf("set status: %v", err)
	}
	status := q.GetJobStatus(ctx, "job-1")
	if status == nil {
		t.Fatal("no status record")
	}
	if status.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3 from config", status.MaxRetries)
	}
	if status.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
	if got := q.GetJobStatus(ctx, "no-such-job"); got != nil {
		t.Errorf("unknown job returned status %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Retry and backoff
// ---------------------------------------------------------------------------

// TestRetryJobRequeues verifies a retry bumps the count, waits out the
// backoff, and puts the job back on its lane.
func TestRetryJobRequeues(t *testing.T) {
	store := queuetest.NewMemStore()
	q, slept := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.SetJobStatus(ctx, &ingestion.JobStatus{
		JobID:     "job-1",
		CommandID: "cmd-1",
		Status:    ingestion.StateFailed,
	}); err != nil {
		t.Fatalf("seeding status: %v", err)
	}

	data := jobData("doc.pdf")
	data["idempotency_key"] = "req-abc"
	if err := q.StoreIdempotencyKey(ctx, "req-abc", "job-1", 0); err != nil {
		t.Fatalf("seeding idempotency key: %v", err)
	}

	if err := q.RetryJob(ctx, "job-1", "cmd-1", data, 2); err != nil {
		t.Fatalf("retry: %v", err)
	}

	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Errorf("backoff waits = %v, want one 2s wait for the first retry", *slept)
	}
	if n := q.LaneSize(ctx, LaneHigh); n != 1 {
		t.Errorf("high lane size = %d, want 1", n)
	}

	status := q.GetJobStatus(ctx, "job-1")
	if status == nil {
		t.Fatal("no status record after retry")
	}
	if status.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", status.RetryCount)
	}
	if status.Status != ingestion.StatePending {
		t.Errorf("status = %s, want %s after re-enqueue", status.Status, ingestion.StatePending)
	}
	if status.LastAttemptAt == nil || status.NextRetryAt == nil {
		t.Error("retry timestamps not recorded")
	}
}

// TestRetryJobExhausted verifies the retry ceiling.
func TestRetryJobExhausted(t *testing.T) {
	store := queuetest.NewMemStore()
	q, slept := newTestQueue(t, store)
	ctx := t.Context()

	if err := q.SetJobStatus(ctx, &ingestion.JobStatus{
		JobID:      "job-1",
		CommandID:  "cmd-1",
		Status:     ingestion.StateFailed,
		RetryCount: 3,
		MaxRetries: 3,
	}); err != nil {
		t.Fatalf("seeding status: %v", err)
	}

	err := q.RetryJob(ctx, "job-1", "cmd-1", jobData("doc.pdf"), 5)
	if !errors.Is(err, apperrors.ErrRetryExhausted) {
		t.Fatalf("retry error = %v, want ErrRetryExhausted", err)
	}
	if len(*slept) != 0 {
		t.Errorf("exhausted retry should not wait, got %v", *slept)
	}
	if n := q.Size(ctx); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
}

// TestRetryJobUnknown verifies a retry without a status record fails loudly.
func TestRetryJobUnknown(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)

	err := q.RetryJob(t.Context(), "ghost", "cmd-1", jobData("doc.pdf"), 5)
	if !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Fatalf("retry error = %v, want ErrJobNotFound", err)
	}
}

// TestBackoffDelay verifies the exponential schedule: 2^n backoff units.
func TestBackoffDelay(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)

	cases := []struct {
		count int
		want  time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
	}
	for _, c := range cases {
		if got := q.BackoffDelay(c.count); got != c.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", c.count, got, c.want)
		}
	}

	q.cfg.BackoffBase = 0 // falls back to one second
	if got := q.BackoffDelay(1); got != 2*time.Second {
		t.Errorf("BackoffDelay with zero base = %v, want 2s", got)
	}
	q.cfg.BackoffBase = 100 * time.Millisecond
	if got := q.BackoffDelay(2); got != 400*time.Millisecond {
		t.Errorf("BackoffDelay with 100ms base = %v, want 400ms", got)
	}
}

// ---------------------------------------------------------------------------
// Lane sizes and clearing
// ---------------------------------------------------------------------------

// TestLaneSizesAndClear verifies depth reporting and lane draining.
func TestLaneSizesAndClear(t *testing.T) {
	store := queuetest.NewMemStore()
	q, _ := newTestQueue(t, store)
	ctx := t.Context()

	for i, priority := range []int{1, 2, 5, 9} {
		id := string(rune('a' + i))
		if err := q.EnqueueJob(ctx, "job-"+id, "cmd-"+id, jobData(id+".txt"), priority, ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	sizes := q.LaneSizes(ctx)
	if sizes[LaneHigh] != 2 || sizes[LaneMedium] != 1 || sizes[LaneLow] != 1 {
		t.Errorf("lane sizes = %v, want high=2 medium=1 low=1", sizes)
	}
	if n := q.Size(ctx); n != 4 {
		t.Errorf("total size = %d, want 4", n)
	}

	if err := q.Clear(ctx, LaneHigh); err != nil {
		t.Fatalf("clear high: %v", err)
	}
	if n := q.LaneSize(ctx, LaneHigh); n != 0 {
		t.Errorf("high lane size after clear = %d", n)
	}
	if n := q.Size(ctx); n != 2 {
		t.Errorf("total size after clearing high = %d, want 2", n)
	}

	if err := q.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if n := q.Size(ctx); n != 0 {
		t.Errorf("total size after clear all = %d, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// Degraded mode
// ---------------------------------------------------------------------------

// TestDegradedMode verifies that an unreachable store at construction turns
// every write into a success-shaped no-op and every read into a zero value.
func TestDegradedMode(t *testing.T) {
	store := queuetest.NewMemStore()
	store.PingErr = errors.New("connection refused")
	q := New(store, testQueueConfig(), nil)
	ctx := t.Context()

	if q.Available() {
		t.Fatal("queue should be degraded when the probe fails")
	}

	if err := q.EnqueueJob(ctx, "job-1", "cmd-1", jobData("doc.pdf"), 5, "req-abc"); err != nil {
		t.Errorf("degraded enqueue returned %v, want nil", err)
	}
	if n := store.ListLen("ingestion:queue:medium"); n != 0 {
		t.Errorf("degraded enqueue wrote %d entries to the store", n)
	}
	if entry := q.Dequeue(ctx, 0); entry != nil {
		t.Errorf("degraded dequeue returned %+v", entry)
	}
	if status := q.GetJobStatus(ctx, "job-1"); status != nil {
		t.Errorf("degraded status read returned %+v", status)
	}
	if err := q.SetJobStatus(ctx, &ingestion.JobStatus{JobID: "job-1"}); err != nil {
		t.Errorf("degraded status write returned %v", err)
	}
	if got := q.CheckIdempotencyKey(ctx, "req-abc"); got != "" {
		t.Errorf("degraded idempotency check returned %q", got)
	}
	if err := q.StoreIdempotencyKey(ctx, "req-abc", "job-1", 0); err != nil {
		t.Errorf("degraded idempotency write returned %v", err)
	}
	if n := q.Size(ctx); n != 0 {
		t.Errorf("degraded size = %d", n)
	}
	if err := q.ClearAll(ctx); err != nil {
		t.Errorf("degraded clear returned %v", err)
	}
}
