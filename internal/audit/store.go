// Package audit persists the job event stream to PostgreSQL, giving
// operators a queryable history of every job's lifecycle that outlives the
// 24-hour status records in Redis.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/resilience"
)

// JobRecord is one row of the job history table: the latest observed state
// of a job plus when it was first and last seen.
type JobRecord struct {
	JobID         string    `json:"job_id"`
	CommandID     string    `json:"command_id"`
	CorrelationID string    `json:"correlation_id"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	RetryCount    int       `json:"retry_count"`
	FirstSeen     time.Time `json:"first_seen"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Store persists job lifecycle events in PostgreSQL.
//
// It maintains a `job_history` table:
//
//	CREATE TABLE job_history (
//	    job_id         TEXT PRIMARY KEY,
//	    command_id     TEXT NOT NULL,
//	    correlation_id TEXT NOT NULL DEFAULT '',
//	    status         TEXT NOT NULL,
//	    error_message  TEXT NOT NULL DEFAULT '',
//	    retry_count    INT  NOT NULL DEFAULT 0,
//	    first_seen     TIMESTAMPTZ NOT NULL,
//	    last_updated   TIMESTAMPTZ NOT NULL
//	);
//
// Events for one job arrive in order (the producer keys messages by job id)
// so a plain last-writer-wins upsert reflects the latest state.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a job history store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "audit-store"),
	}
}

// EnsureSchema creates the job_history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS job_history (
			job_id         TEXT PRIMARY KEY,
			command_id     TEXT NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL,
			error_message  TEXT NOT NULL DEFAULT '',
			retry_count    INT  NOT NULL DEFAULT 0,
			first_seen     TIMESTAMPTZ NOT NULL,
			last_updated   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating job_history table: %w", err)
	}
	return nil
}

// Record upserts the job's history row from a lifecycle event. Writes are
// retried with backoff so a transient database hiccup does not lose the
// event; redelivered events are harmless because the upsert is idempotent.
func (s *Store) Record(ctx context.Context, event events.JobEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	return resilience.Retry(ctx, "job-history upsert", resilience.RetryConfig{}, func() error {
		_, err := s.db.DB.ExecContext(ctx, `
			INSERT INTO job_history
				(job_id, command_id, correlation_id, status, error_message, retry_count, first_seen, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (job_id) DO UPDATE SET
				status        = EXCLUDED.status,
				error_message = EXCLUDED.error_message,
				retry_count   = EXCLUDED.retry_count,
				last_updated  = EXCLUDED.last_updated`,
			event.JobID, event.CommandID, event.CorrelationID,
			event.Status, event.ErrorMessage, event.RetryCount, occurred,
		)
		return err
	})
}

// JobHistory loads the history row for one job. Returns nil, nil when the
// job has never been seen.
func (s *Store) JobHistory(ctx context.Context, jobID string) (*JobRecord, error) {
	var rec JobRecord
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT job_id, command_id, correlation_id, status, error_message, retry_count, first_seen, last_updated
		FROM job_history
		WHERE job_id = $1`,
		jobID,
	).Scan(&rec.JobID, &rec.CommandID, &rec.CorrelationID, &rec.Status,
		&rec.ErrorMessage, &rec.RetryCount, &rec.FirstSeen, &rec.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying job history: %w", err)
	}
	return &rec, nil
}

// RecentJobs returns the most recently updated history rows, newest first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT job_id, command_id, correlation_id, status, error_message, retry_count, first_seen, last_updated
		FROM job_history
		ORDER BY last_updated DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing job history: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.JobID, &rec.CommandID, &rec.CorrelationID, &rec.Status,
			&rec.ErrorMessage, &rec.RetryCount, &rec.FirstSeen, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning job history row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
