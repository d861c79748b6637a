// Package processor turns an upload command into stored document chunks. It
// extracts text, splits it into fixed-size chunks, reports progress back to
// the orchestrator, and records the finished document in Postgres when a
// database is wired in.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/tracing"
)

const (
	stageExtracting = "Extracting text"
	stageChunking   = "Chunking"
	stageStoring    = "Storing document"
)

// Processor implements ingestion.ProcessFunc over Postgres. A nil database
// disables persistence but not chunking, so the pipeline still makes progress
// while Postgres is away.
type Processor struct {
	db      *postgres.Client
	cfg     config.ProcessorConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(db *postgres.Client, cfg config.ProcessorConfig, m *metrics.Metrics) *Processor {
	return &Processor{
		db:      db,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("processor"),
	}
}

// Process runs the extract -> chunk -> store pipeline for one command.
func (p *Processor) Process(ctx context.Context, cmd *ingestion.UploadCommand, report ingestion.ProgressFunc) (*ingestion.ProcessResult, error) {
	log := p.logger.With("command_id", cmd.CommandID)

	report(stageExtracting, 0, 0)
	_, span := tracing.StartChildSpan(ctx, "extract_text")
	text := ExtractText(cmd.FileFormat, cmd.FileContent)
	span.SetAttr("format", string(cmd.FileFormat))
	span.SetAttr("bytes", len(text))
	span.End()

	chunks := Chunk(text, p.cfg.ChunkSize)
	total := len(chunks)
	log.Debug("document chunked", "format", cmd.FileFormat, "chunks", total)

	// Report at most every tenth chunk; per-chunk status writes would hammer
	// the job store on large files.
	step := total/10 + 1
	for i := range chunks {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chunking interrupted at %d/%d: %w", i, total, ctx.Err())
		default:
		}
		if (i+1)%step == 0 || i+1 == total {
			report(stageChunking, i+1, total)
		}
	}

	if p.db != nil {
		report(stageStoring, total, total)
		if err := p.persist(ctx, cmd, total); err != nil {
			return nil, fmt.Errorf("storing document for command %s: %w", cmd.CommandID, err)
		}
	}

	if p.metrics != nil {
		p.metrics.ChunksProcessedTotal.Add(float64(total))
	}
	return &ingestion.ProcessResult{ChunksProcessed: total, TotalChunks: total}, nil
}

// EnsureSchema creates the documents table if it does not exist.
func (p *Processor) EnsureSchema(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	_, err := p.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			command_id    TEXT PRIMARY KEY,
			file_name     TEXT NOT NULL,
			file_format   TEXT NOT NULL,
			language      TEXT NOT NULL,
			taxonomy_path TEXT NOT NULL,
			author        TEXT NOT NULL DEFAULT '',
			source_url    TEXT NOT NULL DEFAULT '',
			content_hash  TEXT NOT NULL,
			content_size  BIGINT NOT NULL,
			chunk_count   INT NOT NULL,
			ingested_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// persist upserts the finished document's summary row. Re-processing after a
// retry overwrites the earlier attempt's row.
func (p *Processor) persist(ctx context.Context, cmd *ingestion.UploadCommand, chunkCount int) error {
	hash := sha256.Sum256(cmd.FileContent)

	return resilience.WithTimeout(ctx, p.cfg.StoreTimeout, "document persist", func(ctx context.Context) error {
		_, err := p.db.DB.ExecContext(ctx, `
			INSERT INTO documents
				(command_id, file_name, file_format, language, taxonomy_path,
				 author, source_url, content_hash, content_size, chunk_count, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			ON CONFLICT (command_id) DO UPDATE SET
				content_hash = EXCLUDED.content_hash,
				content_size = EXCLUDED.content_size,
				chunk_count  = EXCLUDED.chunk_count,
				ingested_at  = EXCLUDED.ingested_at`,
			cmd.CommandID,
			cmd.FileName,
			string(cmd.FileFormat),
			cmd.Language,
			strings.Join(cmd.TaxonomyPath, "/"),
			cmd.Author,
			cmd.SourceURL,
			hex.EncodeToString(hash[:]),
			len(cmd.FileContent),
			chunkCount,
		)
		return err
	})
}
