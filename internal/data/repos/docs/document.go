package docs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clinvault/clinvault-backend/internal/data/dberr"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error)
	Upsert(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error)
	GetByDocID(ctx context.Context, tx *gorm.DB, docID string) (*types.Document, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil, nil
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, dberr.Classify("create document", err)
	}
	return doc, nil
}

// Upsert keys on doc_id so re-uploading the same filename refreshes the
// existing row instead of failing on the unique index.
func (r *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil, nil
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.UpdatedAt = time.Now().UTC()

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"filename",
				"content_type",
				"size_bytes",
				"storage_key",
				"storage_url",
				"chunk_count",
				"status",
				"error",
				"updated_at",
			}),
		}).
		Create(doc).Error; err != nil {
		return nil, err
	}

	// The conflict path keeps the original row id, re-read so callers
	// always hold the persisted identity.
	return r.GetByDocID(ctx, transaction, doc.DocID)
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.Document
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetByDocID(ctx context.Context, tx *gorm.DB, docID string) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if docID == "" {
		return nil, nil
	}
	var doc types.Document
	err := transaction.WithContext(ctx).
		Where("doc_id = ?", docID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []*types.Document
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.Document{}).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}
