package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/data/repos"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

// PipelineStats is the stats payload: corpus size from the database,
// index shape from the vector store, query outcomes from the audit
// trail.
type PipelineStats struct {
	Documents       int64       `json:"documents"`
	Chunks          int64       `json:"chunks"`
	QueriesAnswered int64       `json:"queries_answered"`
	Refusals        int64       `json:"refusals"`
	Index           index.Stats `json:"index"`
}

type StatsService interface {
	Snapshot(ctx context.Context, tx *gorm.DB) (*PipelineStats, error)
}

type statsService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
	chunkRepo    repos.DocumentChunkRepo
	auditService AuditService
	store        index.Store
}

func NewStatsService(db *gorm.DB, baseLog *logger.Logger, documentRepo repos.DocumentRepo, chunkRepo repos.DocumentChunkRepo, auditService AuditService, store index.Store) StatsService {
	serviceLog := baseLog.With("service", "StatsService")
	return &statsService{
		db:           db,
		log:          serviceLog,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		auditService: auditService,
		store:        store,
	}
}

func (ss *statsService) Snapshot(ctx context.Context, tx *gorm.DB) (*PipelineStats, error) {
	documents, err := ss.documentRepo.Count(ctx, tx)
	if err != nil {
		ss.log.Error("Failed to count documents", "error", err)
		return nil, fmt.Errorf("count documents: %w", err)
	}

	chunks, err := ss.chunkRepo.Count(ctx, tx)
	if err != nil {
		ss.log.Error("Failed to count chunks", "error", err)
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	indexStats, err := ss.store.Stats(ctx)
	if err != nil {
		ss.log.Error("Failed to read index stats", "error", err)
		return nil, fmt.Errorf("index stats: %w", err)
	}

	answered, refused, err := ss.auditService.CountQueries(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &PipelineStats{
		Documents:       documents,
		Chunks:          chunks,
		QueriesAnswered: answered,
		Refusals:        refused,
		Index:           indexStats,
	}, nil
}
