// Package proto defines the message types exchanged over the admin RPC
// endpoint. Messages are plain structs serialised as JSON by the rpc
// package; they carry no behavior.
package proto

// ---------- Queue stats ----------

// QueueStatsRequest asks for the current depth of every priority lane.
type QueueStatsRequest struct{}

// QueueStatsResponse reports per-lane depths and store availability.
type QueueStatsResponse struct {
	Total          int64            `json:"total"`
	Lanes          map[string]int64 `json:"lanes"`
	StoreAvailable bool             `json:"store_available"`
}

// ---------- Job status ----------

// JobStatusRequest asks for the stored status of a single job.
type JobStatusRequest struct {
	JobID string `json:"job_id"`
}

// ---------- Queue clear ----------

// ClearQueueRequest drains one lane, or every lane when Lane is empty.
type ClearQueueRequest struct {
	Lane string `json:"lane,omitempty"`
}

// ClearQueueResponse names what was cleared.
type ClearQueueResponse struct {
	Cleared string `json:"cleared"`
}

// ---------- Worker stats ----------

// WorkerStatsRequest asks for the orchestrator's worker-pool counters.
type WorkerStatsRequest struct{}

// WorkerStatsResponse mirrors the orchestrator's stats snapshot. Field names
// match the snapshot's JSON so responses decode without translation.
type WorkerStatsResponse struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	InFlight  int64 `json:"in_flight"`
}
