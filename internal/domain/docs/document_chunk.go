package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	ChunkID     string `gorm:"column:chunk_id;not null;uniqueIndex" json:"chunk_id"`
	Ordinal     int    `gorm:"column:ordinal;not null" json:"ordinal"`
	Text        string `gorm:"column:text;type:text;not null" json:"text"`
	Page        int    `gorm:"column:page;not null;default:0" json:"page"`
	StartOffset int    `gorm:"column:start_offset;not null" json:"start_offset"`
	EndOffset   int    `gorm:"column:end_offset;not null" json:"end_offset"`
	Embedded    bool   `gorm:"column:embedded;not null;default:false" json:"embedded"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }
