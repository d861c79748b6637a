package tracing

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestStartSpanCarriesTraceID verifies the root span and its context
// round trip.
func TestStartSpanCarriesTraceID(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "process-job", "job-123")
	defer span.End()

	if span.Name() != "process-job" {
		t.Errorf("name = %q", span.Name())
	}
	if span.traceID != "job-123" {
		t.Errorf("trace id = %q, want job-123", span.traceID)
	}
	if got := SpanFromContext(ctx); got != span {
		t.Error("context does not carry the span")
	}
}

// TestChildSpanInheritsTrace verifies parent linkage and trace id
// propagation.
func TestChildSpanInheritsTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "process-job", "job-123")
	childCtx, child := StartChildSpan(ctx, "extract-text")
	grandCtx, grand := StartChildSpan(childCtx, "strip-html")

	if child.traceID != "job-123" || grand.traceID != "job-123" {
		t.Errorf("trace ids = %q, %q, want job-123", child.traceID, grand.traceID)
	}
	if len(root.children) != 1 || root.children[0] != child {
		t.Errorf("root children = %v", root.children)
	}
	if len(child.children) != 1 || child.children[0] != grand {
		t.Errorf("child children = %v", child.children)
	}
	if got := SpanFromContext(grandCtx); got != grand {
		t.Error("innermost context does not carry the innermost span")
	}
}

// TestChildWithoutParentDetaches verifies that a child opened on a bare
// context becomes a standalone root instead of crashing.
func TestChildWithoutParentDetaches(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan-stage")

	if span == nil {
		t.Fatal("no span returned")
	}
	if span.traceID != "" {
		t.Errorf("trace id = %q, want empty", span.traceID)
	}
}

// TestSpanFromEmptyContext verifies the nil return for untraced contexts.
func TestSpanFromEmptyContext(t *testing.T) {
	if got := SpanFromContext(context.Background()); got != nil {
		t.Errorf("SpanFromContext = %v, want nil", got)
	}
}

// TestEndIsIdempotent verifies that a second End keeps the first stamp.
func TestEndIsIdempotent(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "t-1")

	first := span.End()
	time.Sleep(5 * time.Millisecond)
	second := span.End()

	if second != first {
		t.Errorf("second End = %v, want first stamp %v", second, first)
	}
	if span.Duration() != first {
		t.Errorf("Duration = %v, want %v", span.Duration(), first)
	}
}

// TestDurationLive verifies an unfinished span reports elapsed time.
func TestDurationLive(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "t-1")
	time.Sleep(2 * time.Millisecond)

	if d := span.Duration(); d <= 0 {
		t.Errorf("live duration = %v, want > 0", d)
	}
}

// TestAttrsAndError verifies attribute and error recording.
func TestAttrsAndError(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "t-1")
	span.SetAttr("chunks", 12)
	span.SetAttr("lane", "high")
	span.SetError(nil)
	if span.err != nil {
		t.Error("nil error recorded")
	}

	failure := errors.New("extraction failed")
	span.SetError(failure)
	if span.err != failure {
		t.Errorf("err = %v, want %v", span.err, failure)
	}
	if span.attrs["chunks"] != 12 || span.attrs["lane"] != "high" {
		t.Errorf("attrs = %v", span.attrs)
	}
}

// TestLogDoesNotDeadlock verifies logging a live tree while children hold
// no locks; a regression here hangs the test.
func TestLogDoesNotDeadlock(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "process-job", "job-123")
	_, child := StartChildSpan(ctx, "chunk")
	child.SetAttr("count", 3)
	child.End()
	root.End()

	done := make(chan struct{})
	go func() {
		root.Log()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log deadlocked")
	}
}
