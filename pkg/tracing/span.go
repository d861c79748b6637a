// Package tracing records per-job spans and logs them as structured trees.
// A root span is opened per processed job (keyed by the job id as trace id),
// child spans mark the stages inside it, and sampled traces are emitted
// through slog when the job finishes.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type spanCtxKey struct{}

// Span is one timed operation inside a trace. Spans are safe for concurrent
// attribute writes; the tree structure is built by StartChildSpan.
type Span struct {
	name    string
	traceID string
	started time.Time

	mu       sync.Mutex
	finished time.Time
	err      error
	attrs    map[string]any
	children []*Span
}

// StartSpan opens a root span and stores it in the returned context so
// later stages can hang children off it.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := newSpan(name, traceID)
	return context.WithValue(ctx, spanCtxKey{}, s), s
}

// StartChildSpan opens a span nested under the one carried by ctx. Without a
// parent in ctx the child becomes a detached root with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	var traceID string
	if parent != nil {
		traceID = parent.traceID
	}
	s := newSpan(name, traceID)
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanCtxKey{}, s), s
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanCtxKey{}).(*Span)
	return s
}

func newSpan(name, traceID string) *Span {
	return &Span{
		name:    name,
		traceID: traceID,
		started: time.Now(),
		attrs:   make(map[string]any),
	}
}

// End stamps the span's finish time and returns its duration. Ending twice
// keeps the first stamp.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.IsZero() {
		s.finished = time.Now()
	}
	return s.finished.Sub(s.started)
}

// SetAttr attaches a key-value pair to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// SetError marks the span as failed. A nil error is ignored.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Name returns the span's operation name.
func (s *Span) Name() string {
	return s.name
}

// Duration returns the span's elapsed time, live if it has not ended yet.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.IsZero() {
		return time.Since(s.started)
	}
	return s.finished.Sub(s.started)
}

// Log emits the span and its subtree as one slog line per span. Span names
// are slash-joined into a path so a trace reads like a call stack, and
// attributes are sorted for stable output.
func (s *Span) Log() {
	s.logTree(s.name)
}

func (s *Span) logTree(path string) {
	s.mu.Lock()
	elapsed := s.finished.Sub(s.started)
	if s.finished.IsZero() {
		elapsed = time.Since(s.started)
	}
	args := []any{
		"trace_id", s.traceID,
		"span", path,
		"duration_ms", elapsed.Milliseconds(),
	}
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, s.attrs[k])
	}
	if s.err != nil {
		args = append(args, "error", s.err.Error())
	}
	children := make([]*Span, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	slog.Info("span", args...)
	for _, child := range children {
		child.logTree(path + "/" + child.name)
	}
}
