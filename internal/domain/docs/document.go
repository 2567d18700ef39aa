package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusIndexed    = "indexed"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	// DocID is the stable external id derived from the filename
	// (doc_ + first 12 hex of md5); chunk ids hang off it.
	DocID string `gorm:"column:doc_id;not null;uniqueIndex" json:"doc_id"`

	Filename    string `gorm:"column:filename;not null" json:"filename"`
	ContentType string `gorm:"column:content_type" json:"content_type"`
	SizeBytes   int64  `gorm:"column:size_bytes" json:"size_bytes"`
	StorageKey  string `gorm:"column:storage_key" json:"storage_key"`
	StorageURL  string `gorm:"column:storage_url" json:"storage_url"`

	ChunkCount int    `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	Status     string `gorm:"column:status;not null;default:'uploaded'" json:"status"`
	Error      string `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
