package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const defaultHistoryLimit = 50

// Handler serves the job history read API.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		store:  store,
		logger: slog.Default().With("component", "audit-handler"),
	}
}

// History returns the stored history row for one job.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	rec, err := h.store.JobHistory(r.Context(), jobID)
	if err != nil {
		h.logger.Error("history lookup failed", "job_id", jobID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "no history for job")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Recent lists the most recently updated jobs, newest first. ?limit= caps
// the row count (default 50, max 500).
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	records, err := h.store.RecentJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent jobs query failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if records == nil {
		records = []JobRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
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
