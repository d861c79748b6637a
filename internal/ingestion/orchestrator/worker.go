package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/tracing"
)

const (
	stageProcessing = "Processing"
	stageCompleted  = "Completed"
	stageFailed     = "Failed"
)

// worker is one member of the pool: dequeue, process, repeat until cancelled.
func (o *Orchestrator) worker(ctx context.Context, id int) error {
	log := o.logger.With("worker_id", id)
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker exiting")
			return nil
		default:
		}

		entry := o.queue.Dequeue(ctx, 0)
		if entry == nil {
			if ctx.Err() != nil {
				return nil
			}
			// A degraded queue answers instantly; idle instead of spinning.
			if !o.queue.Available() {
				if err := idleWait(ctx, o.cfg.IdlePause); err != nil {
					return nil
				}
			}
			continue
		}

		// Detach from the pool's cancellation: a job already dequeued is
		// finished (or its retry re-enqueued) even during shutdown, bounded
		// by the per-job timeout.
		o.handleJob(context.WithoutCancel(ctx), log, entry)
	}
}

func (o *Orchestrator) handleJob(ctx context.Context, log *slog.Logger, entry *ingestion.QueueEntry) {
	o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	o.processed.Add(1)
	start := time.Now()

	jobCtx, span := tracing.StartSpan(ctx, "process_job", entry.JobID)
	span.SetAttr("command_id", entry.CommandID)
	span.SetAttr("priority", entry.Priority)
	defer func() {
		span.End()
		if o.sampleTrace() {
			span.Log()
		}
	}()

	log = logger.WithJob(log, entry.JobID, entry.CommandID)

	cmd, err := ingestion.CommandFromJobData(entry.JobData)
	if err != nil {
		span.SetError(err)
		log.Error("discarding job with undecodable payload", "error", err)
		o.finishFailed(jobCtx, log, entry, nil, "invalid job payload: "+err.Error(), start)
		return
	}

	o.markProcessing(jobCtx, log, entry, cmd)

	result, procErr := o.invokeProcess(jobCtx, cmd, entry.JobID)
	if procErr != nil {
		span.SetError(procErr)
		o.handleFailure(jobCtx, log, entry, cmd, procErr, start)
		return
	}
	span.SetAttr("chunks", result.TotalChunks)
	o.finishCompleted(jobCtx, log, entry, cmd, result, start)
}

// markProcessing stamps the status record with the attempt's start time and
// the size-based completion estimate.
func (o *Orchestrator) markProcessing(ctx context.Context, log *slog.Logger, entry *ingestion.QueueEntry, cmd *ingestion.UploadCommand) {
	now := time.Now().UTC()
	eta := now.Add(time.Duration(cmd.EstimatedCompletionMinutes()) * time.Minute)

	status := o.queue.GetJobStatus(ctx, entry.JobID)
	if status == nil {
		status = &ingestion.JobStatus{JobID: entry.JobID, CommandID: entry.CommandID}
	}
	status.Status = ingestion.StateProcessing
	status.CurrentStage = stageProcessing
	status.StartedAt = &now
	status.EstimatedCompletion = &eta
	if err := o.queue.SetJobStatus(ctx, status); err != nil {
		log.Warn("processing status write failed", "error", err)
	}

	o.publish(ctx, events.TypeProcessing, ingestion.StateProcessing, entry, cmd, status, "")
	log.Info("job picked up", "priority", entry.Priority, "wait", time.Since(entry.EnqueuedAt).Round(time.Millisecond))
}

// invokeProcess runs the process callback under the per-job deadline, with
// panics converted into ordinary failures so one bad document cannot take a
// worker down.
func (o *Orchestrator) invokeProcess(ctx context.Context, cmd *ingestion.UploadCommand, jobID string) (result *ingestion.ProcessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("processing panicked: %v", r)
		}
	}()

	if o.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ProcessTimeout)
		defer cancel()
	}

	report := func(stage string, chunksProcessed, totalChunks int) {
		status := o.queue.GetJobStatus(ctx, jobID)
		if status == nil {
			return
		}
		status.CurrentStage = stage
		status.ChunksProcessed = chunksProcessed
		status.TotalChunks = totalChunks
		if totalChunks > 0 {
			status.Progress = chunksProcessed * 100 / totalChunks
			if status.Progress > 100 {
				status.Progress = 100
			}
		}
		if err := o.queue.SetJobStatus(ctx, status); err != nil {
			o.logger.Debug("progress write failed", "job_id", jobID, "error", err)
		}
	}

	return o.process(ctx, cmd, report)
}

// handleFailure records the attempt's error and either schedules a retry or
// fails the job terminally once retries are exhausted.
func (o *Orchestrator) handleFailure(ctx context.Context, log *slog.Logger, entry *ingestion.QueueEntry, cmd *ingestion.UploadCommand, procErr error, start time.Time) {
	status := o.queue.GetJobStatus(ctx, entry.JobID)
	if status != nil {
		status.ErrorMessage = procErr.Error()
		if err := o.queue.SetJobStatus(ctx, status); err != nil {
			log.Warn("error status write failed", "error", err)
		}
	}

	if status != nil && status.RetryCount < status.MaxRetries {
		o.retried.Add(1)
		o.observe("retried", start)
		log.Warn("job attempt failed, scheduling retry",
			"attempt", status.RetryCount+1,
			"max_retries", status.MaxRetries,
			"error", procErr,
		)
		o.publish(ctx, events.TypeRetrying, ingestion.StateRetrying, entry, cmd, status, procErr.Error())

		if err := o.queue.RetryJob(ctx, entry.JobID, entry.CommandID, entry.JobData, entry.Priority); err != nil {
			log.Error("retry could not be scheduled, failing job", "error", err)
			o.finishFailed(ctx, log, entry, cmd, procErr.Error(), start)
		}
		return
	}

	o.finishFailed(ctx, log, entry, cmd, procErr.Error(), start)
}

func (o *Orchestrator) finishCompleted(ctx context.Context, log *slog.Logger, entry *ingestion.QueueEntry, cmd *ingestion.UploadCommand, result *ingestion.ProcessResult, start time.Time) {
	now := time.Now().UTC()
	status := o.queue.GetJobStatus(ctx, entry.JobID)
	if status == nil {
		status = &ingestion.JobStatus{JobID: entry.JobID, CommandID: entry.CommandID}
	}
	status.Status = ingestion.StateCompleted
	status.CurrentStage = stageCompleted
	status.Progress = 100
	status.ChunksProcessed = result.ChunksProcessed
	status.TotalChunks = result.TotalChunks
	status.ErrorMessage = ""
	status.CompletedAt = &now
	if err := o.queue.SetJobStatus(ctx, status); err != nil {
		log.Warn("completed status write failed", "error", err)
	}

	o.succeeded.Add(1)
	if o.metrics != nil {
		o.metrics.JobsCompletedTotal.Inc()
	}
	o.observe("completed", start)
	o.publish(ctx, events.TypeCompleted, ingestion.StateCompleted, entry, cmd, status, "")
	log.Info("job completed",
		"chunks", result.TotalChunks,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

func (o *Orchestrator) finishFailed(ctx context.Context, log *slog.Logger, entry *ingestion.QueueEntry, cmd *ingestion.UploadCommand, message string, start time.Time) {
	now := time.Now().UTC()
	status := o.queue.GetJobStatus(ctx, entry.JobID)
	if status == nil {
		status = &ingestion.JobStatus{JobID: entry.JobID, CommandID: entry.CommandID}
	}
	status.Status = ingestion.StateFailed
	status.CurrentStage = stageFailed
	status.ErrorMessage = message
	status.CompletedAt = &now
	if err := o.queue.SetJobStatus(ctx, status); err != nil {
		log.Warn("failed status write failed", "error", err)
	}

	o.failed.Add(1)
	if o.metrics != nil {
		o.metrics.JobsFailedTotal.Inc()
	}
	o.observe("failed", start)
	o.publish(ctx, events.TypeFailed, ingestion.StateFailed, entry, cmd, status, message)
	log.Error("job failed terminally", "error_message", message, "retries_used", status.RetryCount)
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, state ingestion.JobState, entry *ingestion.QueueEntry, cmd *ingestion.UploadCommand, status *ingestion.JobStatus, errMsg string) {
	event := events.JobEvent{
		JobID:        entry.JobID,
		CommandID:    entry.CommandID,
		Type:         eventType,
		Status:       state,
		Priority:     entry.Priority,
		ErrorMessage: errMsg,
	}
	if cmd != nil {
		event.CorrelationID = cmd.CorrelationID
	}
	if status != nil {
		event.RetryCount = status.RetryCount
	}
	o.events.Publish(ctx, event)
}

func (o *Orchestrator) observe(outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.JobDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

func (o *Orchestrator) sampleTrace() bool {
	if !o.traceCfg.Enabled {
		return false
	}
	if o.traceCfg.SampleRate >= 1 {
		return true
	}
	return rand.Float64() < o.traceCfg.SampleRate
}

func idleWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
