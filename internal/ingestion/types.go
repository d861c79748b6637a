// Package ingestion defines the core contracts of the document ingestion
// pipeline: the upload command submitted by clients, the job status record
// tracked through a job's lifecycle, and the queue entry that travels through
// the priority lanes.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileFormat identifies a supported document format.
type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatDOCX FileFormat = "docx"
	FormatCSV  FileFormat = "csv"
	FormatHTML FileFormat = "html"
	FormatTXT  FileFormat = "txt"
)

const (
	DefaultLanguage = "ko"
	DefaultPriority = 5
)

var supportedFormats = []FileFormat{FormatPDF, FormatDOCX, FormatCSV, FormatHTML, FormatTXT}

// Valid reports whether the format is one of the supported document formats.
func (f FileFormat) Valid() bool {
	for _, s := range supportedFormats {
		if f == s {
			return true
		}
	}
	return false
}

// SupportedFormats returns the supported formats as a comma-separated string
// for error messages.
func SupportedFormats() string {
	names := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// FileExtension returns the lowercased extension of a file name without the
// leading dot.
func FileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// FormatFromFileName infers the format from the file name's extension. The
// result may be invalid; callers validate it.
func FormatFromFileName(name string) FileFormat {
	return FileFormat(FileExtension(name))
}

// JobState is a job's position in the pending -> processing ->
// completed/failed lifecycle, with retrying as the transient state between a
// failed attempt and the next one.
type JobState string

const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateRetrying   JobState = "retrying"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// UploadCommand carries everything needed to ingest one document. Commands
// are built once at the API boundary, validated before they reach the queue,
// and never mutated afterwards.
type UploadCommand struct {
	CommandID      string         `json:"command_id"`
	CorrelationID  string         `json:"correlation_id"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	FileName       string         `json:"file_name"`
	FileContent    []byte         `json:"file_content"`
	FileFormat     FileFormat     `json:"file_format"`
	TaxonomyPath   []string       `json:"taxonomy_path"`
	SourceURL      string         `json:"source_url,omitempty"`
	Author         string         `json:"author,omitempty"`
	Language       string         `json:"language"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Priority       int            `json:"priority"`
	RequestedAt    time.Time      `json:"requested_at"`
}

// SetDefaults fills the generated and defaulted fields of a freshly parsed
// command: ids, language, priority, and the request timestamp.
func (c *UploadCommand) SetDefaults() {
	if c.CommandID == "" {
		c.CommandID = uuid.NewString()
	}
	if c.CorrelationID == "" {
		c.CorrelationID = uuid.NewString()
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if c.RequestedAt.IsZero() {
		c.RequestedAt = time.Now().UTC()
	}
}

// EstimatedCompletionMinutes estimates processing time at one minute per
// megabyte of file content, with a one-minute floor.
func (c *UploadCommand) EstimatedCompletionMinutes() int {
	minutes := len(c.FileContent) / (1 << 20)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// JobData flattens the command into the free-form payload map carried by a
// queue entry. File content survives the round trip as base64.
func (c *UploadCommand) JobData() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding upload command: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding upload command into job data: %w", err)
	}
	return data, nil
}

// CommandFromJobData reconstructs the upload command a queue entry carries.
func CommandFromJobData(data map[string]any) (*UploadCommand, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding job data: %w", err)
	}
	var cmd UploadCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("decoding job data into upload command: %w", err)
	}
	return &cmd, nil
}

// QueueEntry is the JSON value pushed onto a priority lane.
type QueueEntry struct {
	JobID      string         `json:"job_id"`
	CommandID  string         `json:"command_id"`
	JobData    map[string]any `json:"job_data"`
	Priority   int            `json:"priority"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// JobStatus is the stored progress record for one job. It lives in the job
// store under a 24-hour TTL and is the single source of truth clients poll.
type JobStatus struct {
	JobID               string     `json:"job_id"`
	CommandID           string     `json:"command_id"`
	Status              JobState   `json:"status"`
	Progress            int        `json:"progress"`
	CurrentStage        string     `json:"current_stage"`
	ChunksProcessed     int        `json:"chunks_processed"`
	TotalChunks         int        `json:"total_chunks"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	RetryCount          int        `json:"retry_count"`
	MaxRetries          int        `json:"max_retries"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	LastAttemptAt       *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt         *time.Time `json:"next_retry_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// UploadAccepted is the 202 response body for an accepted upload.
type UploadAccepted struct {
	JobID                      string   `json:"job_id"`
	CorrelationID              string   `json:"correlation_id"`
	Status                     JobState `json:"status"`
	EstimatedCompletionMinutes int      `json:"estimated_completion_minutes"`
}

// ProgressFunc lets a processor report stage transitions and chunk counts
// while a job runs. Implementations must tolerate being called from the
// worker goroutine at any rate.
type ProgressFunc func(stage string, chunksProcessed, totalChunks int)

// ProcessResult summarises a successful processing run.
type ProcessResult struct {
	ChunksProcessed int
	TotalChunks     int
}

// ProcessFunc does the actual document work for one job. It must respect ctx
// cancellation and may call report as often as it likes. An error return
// triggers the retry machinery.
type ProcessFunc func(ctx context.Context, cmd *UploadCommand, report ProgressFunc) (*ProcessResult, error)
