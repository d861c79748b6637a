// Command auditor starts the job history service.
//
// It consumes job lifecycle events from Kafka and upserts one row per job
// into PostgreSQL, building an audit trail that outlives the 24-hour status
// records in Redis. The trail is queryable via GET /api/v1/history and
// GET /api/v1/history/{id}.
//
// Usage:
//
//	go run ./cmd/auditor [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/postgres"
)

// main boots the auditor: it connects to PostgreSQL, ensures the job_history
// schema, starts the Kafka consumer, and serves the history read API.
// Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting auditor service", "port", cfg.Server.Port)

	m := metrics.New()

	if !cfg.Kafka.Enabled {
		slog.Error("auditor requires kafka.enabled (set DIP_KAFKA_ENABLED=true)")
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := audit.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure job_history schema", "error", err)
		os.Exit(1)
	}

	// Kafka consumer for job lifecycle events.
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.JobEvents, audit.Handle(store))
	auditor := audit.NewAuditor(consumer)
	go func() {
		if err := auditor.Start(ctx); err != nil {
			slog.Error("auditor error", "error", err)
		}
	}()
	slog.Info("auditor consuming", "topic", cfg.Kafka.Topics.JobEvents, "group", cfg.Kafka.ConsumerGroup)

	checker := health.NewChecker()
	checker.RegisterPing("postgres", true, db.Ping)
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	// History read API.
	h := audit.NewHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/history", h.Recent)
	mux.HandleFunc("GET /api/v1/history/{id}", h.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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

	slog.Info("auditor service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if metricsShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
		cancel()
	}

	slog.Info("auditor service stopped")
}
