// Package handler exposes the ingestion pipeline over HTTP: multipart
// document uploads, job status polling, queue stats, and operator queue
// clearing.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
)

// multipartMemoryLimit caps how much of a parsed form stays in memory; the
// rest spills to temp files.
const multipartMemoryLimit = 32 << 20

type Handler struct {
	orch           *orchestrator.Orchestrator
	queue          *queue.JobQueue
	maxUploadBytes int64
	logger         *slog.Logger
}

func New(orch *orchestrator.Orchestrator, q *queue.JobQueue, maxUploadBytes int64) *Handler {
	return &Handler{
		orch:           orch,
		queue:          q,
		maxUploadBytes: maxUploadBytes,
		logger:         slog.Default().With("component", "ingestion-handler"),
	}
}

// Upload accepts a multipart document upload and queues it for asynchronous
// processing. Success is a 202 with the job id and a size-based completion
// estimate; the client polls the jobs endpoint from there.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	cmd, err := h.parseUploadForm(r)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Warn("upload rejected", "status_code", status, "error", err)
		h.writeError(w, status, userMessage(err))
		return
	}

	jobID, err := h.orch.SubmitJob(ctx, cmd)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, apperrors.ErrDuplicateRequest) {
			log.Info("duplicate submission rejected", "idempotency_key_len", len(cmd.IdempotencyKey))
			h.writeError(w, status, "duplicate request: idempotency key already used")
			return
		}
		log.Error("job submission failed", "error", err, "status_code", status)
		h.writeError(w, status, "failed to queue document")
		return
	}

	h.writeJSON(w, http.StatusAccepted, ingestion.UploadAccepted{
		JobID:                      jobID,
		CorrelationID:              cmd.CorrelationID,
		Status:                     ingestion.StatePending,
		EstimatedCompletionMinutes: cmd.EstimatedCompletionMinutes(),
	})
}

// parseUploadForm builds an UploadCommand from the multipart form. Only
// transport-level problems are rejected here (unreadable form, oversized
// body, unknown format); field-level validation happens on submit.
func (h *Handler) parseUploadForm(r *http.Request) (*ingestion.UploadCommand, error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.Newf(apperrors.ErrFileTooLarge, 413, "upload exceeds the %d byte limit", maxErr.Limit)
		}
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "malformed multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "file field is required")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.Newf(apperrors.ErrFileTooLarge, 413, "upload exceeds the %d byte limit", maxErr.Limit)
		}
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "reading uploaded file failed")
	}
	if len(content) > validator.MaxFileSize {
		return nil, apperrors.Newf(apperrors.ErrFileTooLarge, 413, "file is %d bytes, limit is %d", len(content), validator.MaxFileSize)
	}

	cmd := &ingestion.UploadCommand{
		FileName:       header.Filename,
		FileContent:    content,
		TaxonomyPath:   parseTaxonomyPath(r.FormValue("taxonomy_path")),
		SourceURL:      r.FormValue("source_url"),
		Author:         r.FormValue("author"),
		Language:       r.FormValue("language"),
		IdempotencyKey: idempotencyKeyFrom(r),
		CorrelationID:  r.Header.Get("X-Correlation-ID"),
	}

	if declared := r.FormValue("format"); declared != "" {
		cmd.FileFormat = ingestion.FileFormat(strings.ToLower(declared))
	} else {
		cmd.FileFormat = ingestion.FormatFromFileName(header.Filename)
	}
	if !cmd.FileFormat.Valid() {
		return nil, apperrors.Newf(apperrors.ErrUnsupportedFormat, 415,
			"format %q is not supported (expected one of: %s)", cmd.FileFormat, ingestion.SupportedFormats())
	}

	if v := r.FormValue("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &cmd.Metadata); err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "metadata must be a JSON object")
		}
	}

	cmd.SetDefaults()

	// Priority is applied after defaulting so an explicit out-of-range value
	// (including 0) reaches the validator instead of being silently replaced.
	if v := r.FormValue("priority"); v != "" {
		priority, err := strconv.Atoi(v)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "priority must be an integer")
		}
		cmd.Priority = priority
	}

	return cmd, nil
}

// JobStatus returns the stored status record for one job.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	status := h.orch.GetJobStatus(r.Context(), jobID)
	if status == nil {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// queueStatsResponse is the queue stats endpoint's body.
type queueStatsResponse struct {
	Total          int64              `json:"total"`
	Lanes          map[string]int64   `json:"lanes"`
	StoreAvailable bool               `json:"store_available"`
	Workers        orchestrator.Stats `json:"workers"`
}

// QueueStats reports per-lane depths and worker-pool counters.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lanes := make(map[string]int64, len(queue.Lanes))
	var total int64
	for lane, depth := range h.queue.LaneSizes(ctx) {
		lanes[string(lane)] = depth
		total += depth
	}

	h.writeJSON(w, http.StatusOK, queueStatsResponse{
		Total:          total,
		Lanes:          lanes,
		StoreAvailable: h.queue.Available(),
		Workers:        h.orch.WorkerStats(),
	})
}

// ClearQueue drains one lane (?lane=high|medium|low) or all lanes.
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	laneParam := r.URL.Query().Get("lane")
	if laneParam != "" {
		lane, ok := queue.ParseLane(laneParam)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown lane: "+laneParam)
			return
		}
		if err := h.queue.Clear(ctx, lane); err != nil {
			log.Error("lane clear failed", "lane", lane, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to clear lane")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"cleared": string(lane)})
		return
	}

	if err := h.queue.ClearAll(ctx); err != nil {
		log.Error("queue clear failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"cleared": "all"})
}

func parseTaxonomyPath(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	segments := make([]string, len(parts))
	for i, part := range parts {
		segments[i] = strings.TrimSpace(part)
	}
	return segments
}

// idempotencyKeyFrom prefers the Idempotency-Key header, falling back to the
// form field.
func idempotencyKeyFrom(r *http.Request) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return r.FormValue("idempotency_key")
}

// userMessage strips internal wrapping from AppErrors so clients see the
// message without the sentinel prefix.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
