// Package admin exposes operator endpoints over the pipeline's JSON-RPC
// admin plane: queue stats, queue clearing, job status lookup, and
// worker-pool counters. The queuectl command is the intended client.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/rpc"
)

// Service implements the admin RPC methods against the live queue and
// orchestrator.
type Service struct {
	queue  *queue.JobQueue
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// New creates the admin service.
func New(q *queue.JobQueue, orch *orchestrator.Orchestrator) *Service {
	return &Service{
		queue:  q,
		orch:   orch,
		logger: slog.Default().With("component", "admin"),
	}
}

// RegisterAll registers every admin method on the RPC server.
func (s *Service) RegisterAll(server *rpc.Server) {
	server.Register("queue.stats", s.queueStats)
	server.Register("queue.clear", s.clearQueue)
	server.Register("job.status", s.jobStatus)
	server.Register("worker.stats", s.workerStats)
}

func (s *Service) queueStats(ctx context.Context, _ json.RawMessage) (any, error) {
	lanes := make(map[string]int64, len(queue.Lanes))
	var total int64
	for lane, depth := range s.queue.LaneSizes(ctx) {
		lanes[string(lane)] = depth
		total += depth
	}
	return &proto.QueueStatsResponse{
		Total:          total,
		Lanes:          lanes,
		StoreAvailable: s.queue.Available(),
	}, nil
}

func (s *Service) clearQueue(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.ClearQueueRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	}

	if req.Lane == "" {
		if err := s.queue.ClearAll(ctx); err != nil {
			return nil, err
		}
		s.logger.Info("queue cleared via admin rpc", "lane", "all")
		return &proto.ClearQueueResponse{Cleared: "all"}, nil
	}

	lane, ok := queue.ParseLane(req.Lane)
	if !ok {
		return nil, fmt.Errorf("unknown lane: %s", req.Lane)
	}
	if err := s.queue.Clear(ctx, lane); err != nil {
		return nil, err
	}
	s.logger.Info("queue cleared via admin rpc", "lane", lane)
	return &proto.ClearQueueResponse{Cleared: string(lane)}, nil
}

func (s *Service) jobStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.JobStatusRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if req.JobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}

	status := s.queue.GetJobStatus(ctx, req.JobID)
	if status == nil {
		return nil, fmt.Errorf("job not found: %s", req.JobID)
	}
	return status, nil
}

func (s *Service) workerStats(_ context.Context, _ json.RawMessage) (any, error) {
	stats := s.orch.WorkerStats()
	return &proto.WorkerStatsResponse{
		Workers:   stats.Workers,
		Processed: stats.Processed,
		Succeeded: stats.Succeeded,
		Failed:    stats.Failed,
		Retried:   stats.Retried,
		InFlight:  stats.InFlight,
	}, nil
}
