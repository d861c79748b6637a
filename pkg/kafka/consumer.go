// Package kafka carries the job event stream: a producer that publishes
// lifecycle events keyed by job id, and a consumer-group reader the auditor
// uses to fold the stream into job history. Both sit on segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	"github.com/segmentio/kafka-go"
)

// fetchErrorPause keeps a consumer from hot-looping against a broker that is
// down; fetch errors cost one pause each instead of a spin.
const fetchErrorPause = time.Second

// MessageHandler processes one message. Returning an error leaves the
// message uncommitted, so it is redelivered after a restart or rebalance.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads one topic as part of a consumer group and feeds every
// message through a MessageHandler before committing its offset.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  *slog.Logger
}

// NewConsumer builds a consumer for the topic. A fresh group starts from the
// earliest retained offset, so the audit trail includes events published
// before the auditor first ran.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start runs the fetch-handle-commit loop until ctx is cancelled. Offsets
// are committed only after the handler succeeds: a crash mid-handle means
// redelivery, never a dropped event.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consuming")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return c.reader.Close()
			}
			c.logger.Error("fetch failed", "error", err)
			if pauseErr := pause(ctx, fetchErrorPause); pauseErr != nil {
				return c.reader.Close()
			}
			continue
		}

		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("handler failed, message left uncommitted",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Close closes the underlying reader; a blocked Start unblocks with an error.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
