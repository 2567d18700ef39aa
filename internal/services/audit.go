package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/agent"
	"github.com/clinvault/clinvault-backend/internal/data/repos"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// AuditService persists request audit trails. Append takes event values
// so it plugs straight into the orchestrator as its audit sink; reads
// come back ordered the way the trail was written.
type AuditService interface {
	Append(ctx context.Context, events []types.AuditEvent) error
	GetTrail(ctx context.Context, tx *gorm.DB, requestID string) ([]*types.AuditEvent, error)
	GetSessionHistory(ctx context.Context, tx *gorm.DB, sessionID string, limit int) ([]*types.AuditEvent, error)
	CountQueries(ctx context.Context, tx *gorm.DB) (answered int64, refused int64, err error)
}

var _ agent.AuditSink = (AuditService)(nil)

type auditService struct {
	db        *gorm.DB
	log       *logger.Logger
	auditRepo repos.AuditEventRepo
}

func NewAuditService(db *gorm.DB, baseLog *logger.Logger, auditRepo repos.AuditEventRepo) AuditService {
	serviceLog := baseLog.With("service", "AuditService")
	return &auditService{
		db:        db,
		log:       serviceLog,
		auditRepo: auditRepo,
	}
}

func (as *auditService) Append(ctx context.Context, events []types.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*types.AuditEvent, 0, len(events))
	for i := range events {
		rows = append(rows, &events[i])
	}
	if _, err := as.auditRepo.Append(ctx, nil, rows); err != nil {
		as.log.Error("Failed to append audit events", "error", err, "request_id", events[0].RequestID, "count", len(rows))
		return fmt.Errorf("append audit events: %w", err)
	}
	as.log.Debug("Audit events appended", "request_id", events[0].RequestID, "count", len(rows))
	return nil
}

func (as *auditService) GetTrail(ctx context.Context, tx *gorm.DB, requestID string) ([]*types.AuditEvent, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request id required")
	}
	events, err := as.auditRepo.GetByRequestID(ctx, tx, requestID)
	if err != nil {
		as.log.Error("Failed to fetch audit trail", "error", err, "request_id", requestID)
		return nil, fmt.Errorf("get audit trail: %w", err)
	}
	return events, nil
}

func (as *auditService) GetSessionHistory(ctx context.Context, tx *gorm.DB, sessionID string, limit int) ([]*types.AuditEvent, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	events, err := as.auditRepo.GetBySessionID(ctx, tx, sessionID, limit)
	if err != nil {
		as.log.Error("Failed to fetch session history", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("get session history: %w", err)
	}
	return events, nil
}

// CountQueries reports how many query pipelines completed and how many
// of those refused, straight off the recorded trails.
func (as *auditService) CountQueries(ctx context.Context, tx *gorm.DB) (int64, int64, error) {
	answered, err := as.auditRepo.CountByEventType(ctx, tx, types.EventPipelineCompleted)
	if err != nil {
		as.log.Error("Failed to count completed pipelines", "error", err)
		return 0, 0, fmt.Errorf("count queries: %w", err)
	}
	refused, err := as.auditRepo.CountByEventType(ctx, tx, types.EventAnswerRefused)
	if err != nil {
		as.log.Error("Failed to count refusals", "error", err)
		return 0, 0, fmt.Errorf("count refusals: %w", err)
	}
	return answered, refused, nil
}
