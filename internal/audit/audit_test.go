package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fakeSink struct {
	recorded []events.JobEvent
	err      error
}

func (s *fakeSink) Record(_ context.Context, event events.JobEvent) error {
	if s.err != nil {
		return s.err
	}
	s.recorded = append(s.recorded, event)
	return nil
}

func encodeEvent(t *testing.T, event events.JobEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("encoding event: %v", err)
	}
	return payload
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestHandleRecordsEvent verifies that a well-formed event reaches the sink
// intact.
func TestHandleRecordsEvent(t *testing.T) {
	sink := &fakeSink{}
	handle := Handle(sink)

	event := events.JobEvent{
		JobID:     "job-1",
		CommandID: "cmd-1",
		Type:      "job.completed",
		Status:    ingestion.StateCompleted,
	}
	if err := handle(t.Context(), []byte("job-1"), encodeEvent(t, event)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.recorded) != 1 {
		t.Fatalf("recorded %d events, want 1", len(sink.recorded))
	}
	got := sink.recorded[0]
	if got.JobID != "job-1" || got.Type != "job.completed" || got.Status != ingestion.StateCompleted {
		t.Errorf("recorded event = %+v", got)
	}
}

// TestHandleSkipsMalformed verifies that an undecodable payload is dropped
// without an error, so the consumer commits past it instead of looping.
func TestHandleSkipsMalformed(t *testing.T) {
	sink := &fakeSink{}
	handle := Handle(sink)

	if err := handle(t.Context(), nil, []byte("{not json")); err != nil {
		t.Fatalf("handle returned error for malformed payload: %v", err)
	}
	if len(sink.recorded) != 0 {
		t.Errorf("malformed payload reached the sink: %+v", sink.recorded)
	}
}

// TestHandleSkipsMissingJobID verifies that events without a job id are
// dropped rather than stored under an empty key.
func TestHandleSkipsMissingJobID(t *testing.T) {
	sink := &fakeSink{}
	handle := Handle(sink)

	event := events.JobEvent{Type: "job.enqueued"}
	if err := handle(t.Context(), nil, encodeEvent(t, event)); err != nil {
		t.Fatalf("handle returned error for keyless event: %v", err)
	}
	if len(sink.recorded) != 0 {
		t.Errorf("keyless event reached the sink: %+v", sink.recorded)
	}
}

// TestHandlePropagatesSinkError verifies that a failing sink surfaces its
// error, leaving the message uncommitted for redelivery.
func TestHandlePropagatesSinkError(t *testing.T) {
	sinkErr := errors.New("database unavailable")
	handle := Handle(&fakeSink{err: sinkErr})

	event := events.JobEvent{JobID: "job-1", Type: "job.failed"}
	err := handle(t.Context(), []byte("job-1"), encodeEvent(t, event))
	if !errors.Is(err, sinkErr) {
		t.Errorf("handle error = %v, want %v", err, sinkErr)
	}
}
