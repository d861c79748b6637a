// Command ingestion starts the document ingestion pipeline service.
//
// The service accepts document uploads via POST /api/v1/documents, validates
// them, and queues them on Redis-backed priority lanes for asynchronous
// processing by an in-process worker pool. Clients poll GET /api/v1/jobs/{id}
// for progress. When Redis is unreachable at startup the service runs in
// degraded mode: uploads are still accepted and acknowledged, but nothing is
// queued or processed.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/admin"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/processor"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion/router"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/rpc"
)

// main assembles the pipeline: Redis-backed queue, optional PostgreSQL
// persistence, optional Kafka event publishing, the orchestrator worker pool,
// the HTTP API, the Prometheus endpoint, and the admin RPC plane. Graceful
// shutdown is triggered by SIGINT/SIGTERM: the HTTP server stops accepting,
// then the worker pool drains its in-flight jobs.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service",
		"port", cfg.Server.Port,
		"workers", cfg.Orchestrator.Workers,
		"max_retries", cfg.Queue.MaxRetries,
	)

	m := metrics.New()

	// Redis-backed job queue. An unreachable store means degraded mode, not a
	// failed startup.
	redisClient := redis.NewClient(cfg.Redis)
	defer redisClient.Close()
	jobQueue := queue.New(redisClient, cfg.Queue, m)
	if !jobQueue.Available() {
		slog.Warn("running in degraded mode: uploads are accepted but not queued")
	}

	// PostgreSQL is optional: without it, processed documents are not persisted.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document persistence disabled", "error", err)
		db = nil
	} else {
		defer db.Close()
		slog.Info("connected to postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job lifecycle events. A nil publisher is a no-op at every call site.
	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.JobEvents)
		defer producer.Close()
		publisher = events.NewPublisher(producer, m)
		slog.Info("job event publishing enabled", "topic", cfg.Kafka.Topics.JobEvents)
	}

	// Document processor.
	proc := processor.New(db, cfg.Processor, m)
	if db != nil {
		if err := proc.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure documents schema", "error", err)
			os.Exit(1)
		}
	}

	// Orchestrator worker pool.
	orch := orchestrator.New(jobQueue, proc.Process, publisher, m, cfg.Orchestrator, cfg.Tracing)
	if err := orch.Start(ctx); err != nil {
		slog.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}
	slog.Info("orchestrator started", "workers", cfg.Orchestrator.Workers)

	// Queue depth gauges.
	poller := queue.NewDepthPoller(jobQueue, m, cfg.Queue.DepthPollInterval)
	poller.Start(ctx)

	// Health checks. Redis going away degrades readiness instead of failing it
	// because the degraded pipeline still accepts uploads.
	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if !jobQueue.Available() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "store unreachable, accepting uploads without queueing"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if db != nil {
		checker.RegisterPing("postgres", false, db.Ping)
	}

	// API-key auth requires PostgreSQL for the key table.
	var keyValidator *apikey.Validator
	var limiter *ratelimit.Limiter
	if cfg.Auth.Enabled {
		if db == nil {
			slog.Error("auth.enabled requires a reachable postgres")
			os.Exit(1)
		}
		keyValidator = apikey.NewValidator(db, cfg.Auth.CacheTTL)
		if err := keyValidator.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure api_keys schema", "error", err)
			os.Exit(1)
		}
		limiter = ratelimit.New(cfg.Auth.RateLimitWindow)
		defer limiter.Close()
		slog.Info("api key auth enabled", "cache_ttl", cfg.Auth.CacheTTL)
	}

	// HTTP API.
	h := handler.New(orch, jobQueue, cfg.Server.MaxUploadBytes)
	chain := router.New(h, checker, router.Options{
		KeyValidator:   keyValidator,
		RateLimiter:    limiter,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Prometheus endpoint on its own port.
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	// Admin RPC plane for queuectl.
	var rpcServer *rpc.Server
	if cfg.Admin.Enabled {
		rpcServer = rpc.NewServer()
		admin.New(jobQueue, orch).RegisterAll(rpcServer)
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.Admin.Port)); err != nil {
			slog.Error("failed to start admin rpc server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := rpcServer.Serve(); err != nil {
				slog.Error("admin rpc server error", "error", err)
			}
		}()
		slog.Info("admin rpc listening", "addr", rpcServer.Addr())
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// HTTP is down; drain the worker pool, then stop the rest.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := orch.Stop(drainCtx); err != nil {
		slog.Warn("worker pool drain incomplete", "error", err)
	}
	if rpcServer != nil {
		rpcServer.Stop()
	}
	poller.Close()
	if metricsShutdown != nil {
		if err := metricsShutdown(drainCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	slog.Info("ingestion service stopped")
}
