package app

import (
	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/agent"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/rag/chunker"
	"github.com/clinvault/clinvault-backend/internal/rag/retriever"
	"github.com/clinvault/clinvault-backend/internal/safety"
	"github.com/clinvault/clinvault-backend/internal/services"
	"github.com/clinvault/clinvault-backend/internal/temporalx"
	"github.com/clinvault/clinvault-backend/internal/temporalx/docingest"
)

type Services struct {
	Audit services.AuditService

	// Ingest serves uploads: the Temporal dispatcher when a cluster is
	// configured, the in-process pipeline otherwise.
	Ingest services.IngestService
	// IngestDirect always runs in-process; the Temporal worker executes
	// its activities through it.
	IngestDirect services.IngestService

	Query services.QueryService
	Stats services.StatsService

	// Orchestrator is the pipeline behind Query, exposed for the
	// evaluation harness which replays datasets through it directly.
	Orchestrator agent.Orchestrator
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	auditService := services.NewAuditService(db, log, repos.AuditEvent)

	chunkSplitter := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, log)

	ingestDirect := services.NewIngestService(
		db,
		log,
		repos.Document,
		repos.DocumentChunk,
		clients.Blobs,
		clients.PDFExtractor,
		chunkSplitter,
		clients.Embedder,
		clients.VectorStore,
		auditService,
		services.IngestLimits{
			MaxUploadBytes: cfg.MaxUploadBytes,
			EmbedBatchSize: cfg.EmbedBatchSize,
			EmbedWorkers:   cfg.EmbedWorkers,
		},
	)

	ingest := ingestDirect
	if clients.Temporal != nil {
		tcfg := temporalx.LoadConfig()
		ingest = docingest.NewDispatcher(log, clients.Temporal, tcfg.TaskQueue, ingestDirect, clients.Blobs)
	}

	contextRetriever := retriever.New(clients.VectorStore, clients.Embedder, log)

	validator := safety.NewValidator(safety.Config{
		GroundingThreshold:  cfg.GroundingThreshold,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxInjectionScore:   cfg.MaxInjectionScore,
	}, log)
	contentFilter := safety.NewContentFilter(log)

	orchestrator := agent.NewOrchestrator(
		contextRetriever,
		clients.Tools,
		clients.Generator,
		validator,
		contentFilter,
		auditService,
		log,
	)

	queryService := services.NewQueryService(log, orchestrator)

	statsService := services.NewStatsService(
		db,
		log,
		repos.Document,
		repos.DocumentChunk,
		auditService,
		clients.VectorStore,
	)

	return Services{
		Audit:        auditService,
		Ingest:       ingest,
		IngestDirect: ingestDirect,
		Query:        queryService,
		Stats:        statsService,
		Orchestrator: orchestrator,
	}
}
