// Package queue implements the Redis-backed priority job queue at the heart
// of the ingestion pipeline. Jobs are spread across three lanes (high,
// medium, low) keyed off the command priority, job status records are kept
// under a 24-hour TTL, and idempotency keys map to job ids for one hour.
//
// The queue degrades gracefully: when Redis cannot be reached at
// construction time, writes become success-shaped no-ops and reads return
// zero values, so the API keeps accepting uploads while the store is away.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
)

const (
	laneKeyPrefix = "ingestion:queue:"
	jobKeyPrefix  = "ingestion:job:"
	idemKeyPrefix = "ingestion:idempotency:"

	stageQueued = "Queued"
)

// Lane is one of the three priority lanes.
type Lane string

const (
	LaneHigh   Lane = "high"
	LaneMedium Lane = "medium"
	LaneLow    Lane = "low"
)

// Lanes lists the lanes in strict dequeue order.
var Lanes = []Lane{LaneHigh, LaneMedium, LaneLow}

// LaneForPriority maps a command priority (1 = most urgent) to its lane.
func LaneForPriority(priority int) Lane {
	switch {
	case priority <= 3:
		return LaneHigh
	case priority <= 7:
		return LaneMedium
	default:
		return LaneLow
	}
}

// ParseLane converts a lane name from user input.
func ParseLane(name string) (Lane, bool) {
	switch Lane(name) {
	case LaneHigh, LaneMedium, LaneLow:
		return Lane(name), true
	default:
		return "", false
	}
}

func laneKey(lane Lane) string {
	return laneKeyPrefix + string(lane)
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func idemKey(key string) string {
	return idemKeyPrefix + key
}

// Store is the key-value and list surface the queue needs from its backing
// store. *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	LPush(ctx context.Context, key string, value string) (int64, error)
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, string, bool, error)
	LLen(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// JobQueue is the priority queue plus the job status and idempotency records
// that ride along with it.
type JobQueue struct {
	store     Store
	cfg       config.QueueConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	available bool

	// sleep is swapped out in tests so backoff waits don't slow the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a JobQueue and probes the store once with the configured connect
// timeout. An unreachable store puts the queue into degraded mode for the
// lifetime of the process.
func New(store Store, cfg config.QueueConfig, m *metrics.Metrics) *JobQueue {
	q := &JobQueue{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("job-queue"),
		sleep:   sleepContext,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		q.logger.Error("job store unreachable, queue running in degraded mode",
			"error", err,
			"connect_timeout", cfg.ConnectTimeout,
		)
		q.available = false
		return q
	}
	q.available = true
	q.logger.Info("job store connected")
	return q
}

// Available reports whether the backing store was reachable at startup.
func (q *JobQueue) Available() bool {
	return q.available
}

// CheckIdempotencyKey returns the job id a key maps to, or "" when the key is
// unknown, expired, or the store is degraded.
func (q *JobQueue) CheckIdempotencyKey(ctx context.Context, key string) string {
	if !q.available || key == "" {
		return ""
	}
	jobID, found, err := q.store.Get(ctx, idemKey(key))
	if err != nil {
		q.logger.Error("idempotency lookup failed", "error", err)
		return ""
	}
	if !found {
		return ""
	}
	return jobID
}

// StoreIdempotencyKey maps key -> jobID for ttl, or for the configured
// idempotency TTL when ttl is zero.
func (q *JobQueue) StoreIdempotencyKey(ctx context.Context, key, jobID string, ttl time.Duration) error {
	if !q.available || key == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = q.cfg.IdempotencyTTL
	}
	if err := q.store.Set(ctx, idemKey(key), jobID, ttl); err != nil {
		q.logger.Error("failed to store idempotency key", "job_id", jobID, "error", err)
		return fmt.Errorf("storing idempotency key: %w", err)
	}
	return nil
}

// EnqueueJob pushes a job onto the lane for its priority and writes the
// initial pending status. A non-empty idempotency key already mapped to a
// different job rejects the enqueue with ErrDuplicateRequest. In degraded
// mode the enqueue silently succeeds without queueing anything.
func (q *JobQueue) EnqueueJob(ctx context.Context, jobID, commandID string, jobData map[string]any, priority int, idempotencyKey string) error {
	if !q.available {
		return nil
	}

	if idempotencyKey != "" {
		if existing := q.CheckIdempotencyKey(ctx, idempotencyKey); existing != "" && existing != jobID {
			return apperrors.Newf(apperrors.ErrDuplicateRequest, 409,
				"idempotency key already maps to job %s", existing)
		}
	}

	entry := ingestion.QueueEntry{
		JobID:      jobID,
		CommandID:  commandID,
		JobData:    jobData,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding queue entry for job %s: %w", jobID, err)
	}

	lane := LaneForPriority(priority)
	if _, err := q.store.LPush(ctx, laneKey(lane), string(payload)); err != nil {
		q.logger.Error("enqueue failed", "job_id", jobID, "lane", lane, "error", err)
		return fmt.Errorf("pushing job %s to %s lane: %w", jobID, lane, err)
	}

	// The initial status write merges over any existing record so a
	// re-enqueued job keeps its retry bookkeeping.
	status := q.GetJobStatus(ctx, jobID)
	if status == nil {
		status = &ingestion.JobStatus{
			JobID:      jobID,
			CommandID:  commandID,
			MaxRetries: q.cfg.MaxRetries,
		}
	}
	status.Status = ingestion.StatePending
	status.Progress = 0
	status.CurrentStage = stageQueued
	if err := q.SetJobStatus(ctx, status); err != nil {
		q.logger.Warn("initial status write failed, job is queued anyway", "job_id", jobID, "error", err)
	}

	if idempotencyKey != "" {
		if err := q.StoreIdempotencyKey(ctx, idempotencyKey, jobID, 0); err != nil {
			q.logger.Warn("idempotency record write failed", "job_id", jobID, "error", err)
		}
	}

	if q.metrics != nil {
		q.metrics.JobsEnqueuedTotal.WithLabelValues(string(lane)).Inc()
	}
	q.logger.Info("job enqueued", "job_id", jobID, "lane", lane, "priority", priority)
	return nil
}

// Dequeue pops the next job, checking lanes in strict high, medium, low
// order. Each lane check blocks for up to timeout (the configured dequeue
// timeout when zero), so an empty queue costs one full sweep before nil is
// returned. Degraded mode returns nil immediately.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) *ingestion.QueueEntry {
	if !q.available {
		return nil
	}
	if timeout <= 0 {
		timeout = q.cfg.DequeueTimeout
	}

	for _, lane := range Lanes {
		_, raw, ok, err := q.store.BRPop(ctx, timeout, laneKey(lane))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("dequeue failed", "lane", lane, "error", err)
			// Pause so a broken store doesn't spin the workers.
			_ = q.sleep(ctx, timeout)
			return nil
		}
		if !ok {
			continue
		}

		var entry ingestion.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			q.logger.Error("dropping malformed queue entry", "lane", lane, "error", err)
			return nil
		}
		if q.metrics != nil {
			q.metrics.JobsDequeuedTotal.WithLabelValues(string(lane)).Inc()
		}
		return &entry
	}
	return nil
}

// SetJobStatus writes a status record under the status TTL, stamping
// UpdatedAt. Degraded mode reports success without writing.
func (q *JobQueue) SetJobStatus(ctx context.Context, status *ingestion.JobStatus) error {
	if !q.available {
		return nil
	}
	if status.MaxRetries <= 0 {
		status.MaxRetries = q.cfg.MaxRetries
	}
	status.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding status for job %s: %w", status.JobID, err)
	}
	if err := q.store.Set(ctx, jobKey(status.JobID), string(payload), q.cfg.StatusTTL); err != nil {
		q.logger.Error("status write failed", "job_id", status.JobID, "error", err)
		return fmt.Errorf("writing status for job %s: %w", status.JobID, err)
	}
	return nil
}

// GetJobStatus returns the stored status for a job, or nil when the job is
// unknown, expired, or the store is degraded.
func (q *JobQueue) GetJobStatus(ctx context.Context, jobID string) *ingestion.JobStatus {
	if !q.available {
		return nil
	}
	raw, found, err := q.store.Get(ctx, jobKey(jobID))
	if err != nil {
		q.logger.Error("status read failed", "job_id", jobID, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var status ingestion.JobStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		q.logger.Error("corrupt status record", "job_id", jobID, "error", err)
		return nil
	}
	return &status
}

// RetryJob schedules another attempt for a failed job: it bumps the retry
// count, refuses once the ceiling is hit, waits out the exponential backoff,
// and re-enqueues the job at its original priority. The wait blocks the
// calling worker; that is deliberate back-pressure on a struggling pipeline.
func (q *JobQueue) RetryJob(ctx context.Context, jobID, commandID string, jobData map[string]any, priority int) error {
	status := q.GetJobStatus(ctx, jobID)
	if status == nil {
		return fmt.Errorf("%w: no status record for job %s", apperrors.ErrJobNotFound, jobID)
	}

	status.RetryCount++
	if status.RetryCount > status.MaxRetries {
		q.logger.Warn("job exhausted retries",
			"job_id", jobID,
			"attempts", status.RetryCount-1,
			"max_retries", status.MaxRetries,
		)
		return fmt.Errorf("%w: job %s already used %d retries", apperrors.ErrRetryExhausted, jobID, status.MaxRetries)
	}

	delay := q.BackoffDelay(status.RetryCount)
	now := time.Now().UTC()
	next := now.Add(delay)
	status.Status = ingestion.StateRetrying
	status.LastAttemptAt = &now
	status.NextRetryAt = &next
	if err := q.SetJobStatus(ctx, status); err != nil {
		q.logger.Warn("retrying status write failed", "job_id", jobID, "error", err)
	}

	if q.metrics != nil {
		q.metrics.JobRetriesTotal.Inc()
	}
	q.logger.Info("job retry scheduled",
		"job_id", jobID,
		"retry", status.RetryCount,
		"max_retries", status.MaxRetries,
		"backoff", delay,
	)

	if err := q.sleep(ctx, delay); err != nil {
		return fmt.Errorf("retry wait for job %s aborted: %w", jobID, err)
	}

	idempotencyKey, _ := jobData["idempotency_key"].(string)
	return q.EnqueueJob(ctx, jobID, commandID, jobData, priority, idempotencyKey)
}

// BackoffDelay returns the wait before the nth retry attempt: 2^n backoff
// units, uncapped. With the default one-second unit that is 2s, 4s, 8s, ...
func (q *JobQueue) BackoffDelay(retryCount int) time.Duration {
	base := q.cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	return time.Duration(1<<uint(retryCount)) * base
}

// LaneSize returns the number of jobs waiting in one lane.
func (q *JobQueue) LaneSize(ctx context.Context, lane Lane) int64 {
	if !q.available {
		return 0
	}
	n, err := q.store.LLen(ctx, laneKey(lane))
	if err != nil {
		q.logger.Error("lane size read failed", "lane", lane, "error", err)
		return 0
	}
	return n
}

// LaneSizes returns the depth of every lane.
func (q *JobQueue) LaneSizes(ctx context.Context) map[Lane]int64 {
	sizes := make(map[Lane]int64, len(Lanes))
	for _, lane := range Lanes {
		sizes[lane] = q.LaneSize(ctx, lane)
	}
	return sizes
}

// Size returns the total number of jobs waiting across all lanes.
func (q *JobQueue) Size(ctx context.Context) int64 {
	var total int64
	for _, lane := range Lanes {
		total += q.LaneSize(ctx, lane)
	}
	return total
}

// Clear drains one lane.
func (q *JobQueue) Clear(ctx context.Context, lane Lane) error {
	if !q.available {
		return nil
	}
	if err := q.store.Del(ctx, laneKey(lane)); err != nil {
		return fmt.Errorf("clearing %s lane: %w", lane, err)
	}
	q.logger.Info("lane cleared", "lane", lane)
	return nil
}

// ClearAll drains every lane.
func (q *JobQueue) ClearAll(ctx context.Context) error {
	for _, lane := range Lanes {
		if err := q.Clear(ctx, lane); err != nil {
			return err
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
