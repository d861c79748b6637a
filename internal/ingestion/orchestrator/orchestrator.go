// Package orchestrator owns the worker pool that drains the priority queue
// and drives jobs through their lifecycle. It is also the single entry point
// for submitting new jobs, so validation, enqueueing, and lifecycle events
// stay in one place.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stats is a point-in-time snapshot of the worker pool's counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	InFlight  int64 `json:"in_flight"`
}

// Orchestrator validates and submits jobs, and runs the worker pool that
// processes them.
type Orchestrator struct {
	queue    *queue.JobQueue
	process  ingestion.ProcessFunc
	events   *events.Publisher
	metrics  *metrics.Metrics
	cfg      config.OrchestratorConfig
	traceCfg config.TracingConfig
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	inFlight  atomic.Int64
}

// New wires an orchestrator. The events publisher may wrap a nil producer;
// metrics may be nil in tests.
func New(q *queue.JobQueue, process ingestion.ProcessFunc, pub *events.Publisher, m *metrics.Metrics, cfg config.OrchestratorConfig, traceCfg config.TracingConfig) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		queue:    q,
		process:  process,
		events:   pub,
		metrics:  m,
		cfg:      cfg,
		traceCfg: traceCfg,
		logger:   logger.WithComponent("orchestrator"),
	}
}

// Start launches the worker pool. It returns immediately; workers run until
// ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("orchestrator already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, workerCtx := errgroup.WithContext(runCtx)
	for i := 0; i < o.cfg.Workers; i++ {
		id := i
		group.Go(func() error {
			return o.worker(workerCtx, id)
		})
	}

	o.cancel = cancel
	o.group = group
	o.running = true
	o.logger.Info("worker pool started",
		"workers", o.cfg.Workers,
		"queue_available", o.queue.Available(),
	)
	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish, bounded by
// ctx. Workers never abandon a job mid-processing; a job picked up before the
// signal completes (or schedules its retry) before its worker exits.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancel
	group := o.group
	o.running = false
	o.mu.Unlock()

	cancel()
	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		o.logger.Info("worker pool stopped", "processed", o.processed.Load())
		return err
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain interrupted: %w", ctx.Err())
	}
}

// SubmitJob validates a command, assigns it a job id, and enqueues it.
// Validation failures and idempotency conflicts come back as typed errors the
// API layer maps to 4xx responses.
func (o *Orchestrator) SubmitJob(ctx context.Context, cmd *ingestion.UploadCommand) (string, error) {
	if err := validator.ValidateUploadCommand(cmd); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	jobData, err := cmd.JobData()
	if err != nil {
		return "", err
	}

	if err := o.queue.EnqueueJob(ctx, jobID, cmd.CommandID, jobData, cmd.Priority, cmd.IdempotencyKey); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateRequest) && o.metrics != nil {
			o.metrics.DuplicatesTotal.Inc()
		}
		return "", err
	}

	o.events.Publish(ctx, events.JobEvent{
		JobID:         jobID,
		CommandID:     cmd.CommandID,
		CorrelationID: cmd.CorrelationID,
		Type:          events.TypeAccepted,
		Status:        ingestion.StatePending,
		Priority:      cmd.Priority,
	})
	logger.FromContext(ctx).Info("job submitted",
		"job_id", jobID,
		"command_id", cmd.CommandID,
		"priority", cmd.Priority,
		"file_size", len(cmd.FileContent),
	)
	return jobID, nil
}

// GetJobStatus returns the stored status for a job, or nil when unknown.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) *ingestion.JobStatus {
	return o.queue.GetJobStatus(ctx, jobID)
}

// WorkerStats snapshots the pool counters.
func (o *Orchestrator) WorkerStats() Stats {
	return Stats{
		Workers:   o.cfg.Workers,
		Processed: o.processed.Load(),
		Succeeded: o.succeeded.Load(),
		Failed:    o.failed.Load(),
		Retried:   o.retried.Load(),
		InFlight:  o.inFlight.Load(),
	}
}
