package app

import (
	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/data/repos"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type Repos struct {
	Document      repos.DocumentRepo
	DocumentChunk repos.DocumentChunkRepo
	AuditEvent    repos.AuditEventRepo
	EvalRun       repos.EvalRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Document:      repos.NewDocumentRepo(db, log),
		DocumentChunk: repos.NewDocumentChunkRepo(db, log),
		AuditEvent:    repos.NewAuditEventRepo(db, log),
		EvalRun:       repos.NewEvalRunRepo(db, log),
	}
}
