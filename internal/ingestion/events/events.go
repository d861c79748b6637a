// Package events publishes job lifecycle events to Kafka. Publishing is
// strictly best-effort: a missing producer or a tripped circuit breaker never
// fails the job that triggered the event.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/resilience"
)

// Event types, one per lifecycle transition.
const (
	TypeAccepted   = "accepted"
	TypeProcessing = "processing"
	TypeCompleted  = "completed"
	TypeFailed     = "failed"
	TypeRetrying   = "retrying"
)

// JobEvent is the payload published for every lifecycle transition. Events
// are keyed by job id, so one job's events stay ordered on one partition.
type JobEvent struct {
	JobID         string             `json:"job_id"`
	CommandID     string             `json:"command_id"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Type          string             `json:"type"`
	Status        ingestion.JobState `json:"status"`
	Priority      int                `json:"priority,omitempty"`
	RetryCount    int                `json:"retry_count,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

// Producer is the publishing surface the event publisher needs.
// *kafka.Producer satisfies it.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher fans job lifecycle events out to Kafka behind a circuit breaker,
// so a dead broker costs one timeout instead of one per event.
type Publisher struct {
	producer Producer
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPublisher wraps a producer. A nil producer yields a publisher whose
// Publish is a no-op, which keeps call sites free of enabled checks.
func NewPublisher(producer Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer: producer,
		breaker:  resilience.NewCircuitBreaker("job-events", resilience.CircuitBreakerConfig{}),
		metrics:  m,
		logger:   logger.WithComponent("job-events"),
	}
}

// Publish sends one lifecycle event. Failures are logged and counted, never
// returned: losing an event must not fail the job it describes.
func (p *Publisher) Publish(ctx context.Context, event JobEvent) {
	if p == nil || p.producer == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	err := p.breaker.Execute(func() error {
		return p.producer.Publish(ctx, kafka.Event{Key: event.JobID, Value: event})
	})

	if p.metrics != nil {
		p.metrics.CircuitBreakerState.WithLabelValues(p.breaker.Name()).Set(float64(p.breaker.GetState()))
	}
	if err != nil {
		p.logger.Warn("job event dropped",
			"job_id", event.JobID,
			"type", event.Type,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.EventsPublishedTotal.WithLabelValues(event.Type, "error").Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues(event.Type, "ok").Inc()
	}
}
