package audit

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/kafka"
)

// EventSink receives decoded job lifecycle events.
type EventSink interface {
	Record(ctx context.Context, event events.JobEvent) error
}

// Handle returns a kafka.MessageHandler that decodes job events and passes
// them to the sink. Malformed payloads are logged and skipped; sink errors
// propagate so the message stays uncommitted and is redelivered.
func Handle(sink EventSink) kafka.MessageHandler {
	logger := slog.Default().With("component", "audit")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.JobEvent](value)
		if err != nil {
			logger.Error("failed to decode job event", "error", err)
			return nil
		}
		if event.JobID == "" {
			logger.Warn("skipping job event without job id", "type", event.Type)
			return nil
		}
		return sink.Record(ctx, event)
	}
}

// Auditor consumes the job event topic and writes each event to the store.
type Auditor struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewAuditor(consumer *kafka.Consumer) *Auditor {
	return &Auditor{
		consumer: consumer,
		logger:   slog.Default().With("component", "auditor"),
	}
}

func (a *Auditor) Start(ctx context.Context) error {
	a.logger.Info("auditor starting")
	return a.consumer.Start(ctx)
}
