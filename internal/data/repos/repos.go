package repos

import (
	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/data/repos/audit"
	"github.com/clinvault/clinvault-backend/internal/data/repos/docs"
	"github.com/clinvault/clinvault-backend/internal/data/repos/evals"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type DocumentRepo = docs.DocumentRepo
type DocumentChunkRepo = docs.DocumentChunkRepo

type AuditEventRepo = audit.AuditEventRepo

type EvalRunRepo = evals.EvalRunRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return docs.NewDocumentRepo(db, baseLog)
}
func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return docs.NewDocumentChunkRepo(db, baseLog)
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	return audit.NewAuditEventRepo(db, baseLog)
}

func NewEvalRunRepo(db *gorm.DB, baseLog *logger.Logger) EvalRunRepo {
	return evals.NewEvalRunRepo(db, baseLog)
}
