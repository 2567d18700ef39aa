package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/data/dberr"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// AuditEventRepo is append-and-read only. There is deliberately no
// update or delete surface; a trail that can be rewritten is not a
// trail.
type AuditEventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, events []*types.AuditEvent) ([]*types.AuditEvent, error)
	GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) ([]*types.AuditEvent, error)
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID string, limit int) ([]*types.AuditEvent, error)
	CountByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (int64, error)
	CountByEventType(ctx context.Context, tx *gorm.DB, eventType string) (int64, error)
}

type auditEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	repoLog := baseLog.With("repo", "AuditEventRepo")
	return &auditEventRepo{db: db, log: repoLog}
}

func (r *auditEventRepo) Append(ctx context.Context, tx *gorm.DB, events []*types.AuditEvent) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.AuditEvent{}, nil
	}
	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
	}

	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(events, batchSize).Error; err != nil {
		return nil, dberr.Classify("append audit events", err)
	}
	return events, nil
}

func (r *auditEventRepo) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AuditEvent
	if requestID == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditEventRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID string, limit int) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AuditEvent
	if sessionID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 200
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditEventRepo) CountByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if requestID == "" {
		return 0, nil
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.AuditEvent{}).
		Where("request_id = ?", requestID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *auditEventRepo) CountByEventType(ctx context.Context, tx *gorm.DB, eventType string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if eventType == "" {
		return 0, nil
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.AuditEvent{}).
		Where("event_type = ?", eventType).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
