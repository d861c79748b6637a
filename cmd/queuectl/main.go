package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/rpc"
)

// laneOrder fixes the print order; map iteration would shuffle it.
var laneOrder = []string{"high", "medium", "low"}

// queuectl is a CLI tool for operating the ingestion pipeline over its
// admin RPC plane.
//
// Usage:
//
//	queuectl [-addr localhost:9091] stats
//	queuectl [-addr localhost:9091] status <job-id>
//	queuectl [-addr localhost:9091] workers
//	queuectl [-addr localhost:9091] clear [high|medium|low]
func main() {
	addr := flag.String("addr", "localhost:9091", "admin rpc address")
	timeout := flag.Duration("timeout", 5*time.Second, "per-call timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	client, err := rpc.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "stats":
		cmdStats(ctx, client)
	case "status":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "error: status requires a job id")
			os.Exit(1)
		}
		cmdStatus(ctx, client, args[1])
	case "workers":
		cmdWorkers(ctx, client)
	case "clear":
		lane := ""
		if len(args) > 1 {
			lane = args[1]
		}
		cmdClear(ctx, client, lane)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func cmdStats(ctx context.Context, client *rpc.Client) {
	var resp proto.QueueStatsResponse
	if err := client.Call(ctx, "queue.stats", &proto.QueueStatsRequest{}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "queue.stats failed: %v\n", err)
		os.Exit(1)
	}

	store := "available"
	if !resp.StoreAvailable {
		store = "UNAVAILABLE (degraded mode)"
	}
	fmt.Printf("Queue depth: %d  (store %s)\n", resp.Total, store)
	for _, lane := range laneOrder {
		fmt.Printf("  %-8s %d\n", lane+":", resp.Lanes[lane])
	}
}

func cmdStatus(ctx context.Context, client *rpc.Client, jobID string) {
	var status ingestion.JobStatus
	if err := client.Call(ctx, "job.status", &proto.JobStatusRequest{JobID: jobID}, &status); err != nil {
		fmt.Fprintf(os.Stderr, "job.status failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Job:      %s\n", status.JobID)
	fmt.Printf("Command:  %s\n", status.CommandID)
	fmt.Printf("Status:   %s\n", status.Status)
	if status.TotalChunks > 0 {
		fmt.Printf("Progress: %d%%  (%s: %d/%d chunks)\n",
			status.Progress, status.CurrentStage, status.ChunksProcessed, status.TotalChunks)
	} else {
		fmt.Printf("Progress: %d%%  (%s)\n", status.Progress, status.CurrentStage)
	}
	fmt.Printf("Retries:  %d/%d\n", status.RetryCount, status.MaxRetries)
	if status.StartedAt != nil {
		fmt.Printf("Started:  %s\n", status.StartedAt.Format(time.RFC3339))
	}
	if status.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", status.CompletedAt.Format(time.RFC3339))
	}
	if status.NextRetryAt != nil {
		fmt.Printf("Next try: %s\n", status.NextRetryAt.Format(time.RFC3339))
	}
	fmt.Printf("Updated:  %s\n", status.UpdatedAt.Format(time.RFC3339))
	if status.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", status.ErrorMessage)
	}
}

func cmdWorkers(ctx context.Context, client *rpc.Client) {
	var resp proto.WorkerStatsResponse
	if err := client.Call(ctx, "worker.stats", &proto.WorkerStatsRequest{}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "worker.stats failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Workers:   %d\n", resp.Workers)
	fmt.Printf("Processed: %d\n", resp.Processed)
	fmt.Printf("Succeeded: %d\n", resp.Succeeded)
	fmt.Printf("Failed:    %d\n", resp.Failed)
	fmt.Printf("Retried:   %d\n", resp.Retried)
	fmt.Printf("In flight: %d\n", resp.InFlight)
}

func cmdClear(ctx context.Context, client *rpc.Client, lane string) {
	var resp proto.ClearQueueResponse
	if err := client.Call(ctx, "queue.clear", &proto.ClearQueueRequest{Lane: lane}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "queue.clear failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Cleared: %s\n", resp.Cleared)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: queuectl [-addr host:port] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  stats             Show per-lane queue depths")
	fmt.Fprintln(os.Stderr, "  status <job-id>   Show the status record for one job")
	fmt.Fprintln(os.Stderr, "  workers           Show worker-pool counters")
	fmt.Fprintln(os.Stderr, "  clear [lane]      Clear one lane, or all lanes when omitted")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  queuectl stats")
	fmt.Fprintln(os.Stderr, "  queuectl status 7f8a9b2c-1d3e-4f56-a7b8-9c0d1e2f3a4b")
	fmt.Fprintln(os.Stderr, "  queuectl clear low")
}
