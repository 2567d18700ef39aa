package docs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type DocumentChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error)
	GetByChunkID(ctx context.Context, tx *gorm.DB, chunkID string) (*types.DocumentChunk, error)
	GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []string) ([]*types.DocumentChunk, error)
	GetByDocumentIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) ([]*types.DocumentChunk, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	repoLog := baseLog.With("repo", "DocumentChunkRepo")
	return &documentChunkRepo{db: db, log: repoLog}
}

func (r *documentChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.DocumentChunk{}, nil
	}
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
	}

	// Keep batches small because Text is large. Re-ingestion replays
	// the same chunk ids, so conflicts refresh the row in place.
	const batchSize = 100

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"document_id",
				"ordinal",
				"text",
				"page",
				"start_offset",
				"end_offset",
				"embedded",
				"metadata",
				"updated_at",
			}),
		}).
		CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *documentChunkRepo) GetByChunkID(ctx context.Context, tx *gorm.DB, chunkID string) (*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if chunkID == "" {
		return nil, nil
	}
	var chunk types.DocumentChunk
	err := transaction.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		First(&chunk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chunk, nil
}

func (r *documentChunkRepo) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []string) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentChunk
	if len(chunkIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentChunkRepo) GetByDocumentIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentChunk
	if len(documentIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Order("document_id, ordinal ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentChunkRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.DocumentChunk{}).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteByDocumentID hard-deletes so a re-ingested document never keeps
// stale trailing chunks when the new split produces fewer pieces.
func (r *documentChunkRepo) DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("document_id = ?", documentID).
		Delete(&types.DocumentChunk{}).Error
}
