package evals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type EvalRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.EvalRun) (*types.EvalRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.EvalRun, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.EvalRun, error)
}

type evalRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvalRunRepo(db *gorm.DB, baseLog *logger.Logger) EvalRunRepo {
	repoLog := baseLog.With("repo", "EvalRunRepo")
	return &evalRunRepo{db: db, log: repoLog}
}

func (r *evalRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.EvalRun) (*types.EvalRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, nil
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *evalRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.EvalRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.EvalRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *evalRunRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.EvalRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []*types.EvalRun
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
