package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/clinvault/clinvault-backend/internal/domain"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, docID string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:          uuid.New(),
		DocID:       docID,
		Filename:    docID + ".pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
		StorageKey:  "documents/" + docID + ".pdf",
		Status:      types.DocumentStatusUploaded,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedDocumentChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, docID string, ordinal int) *types.DocumentChunk {
	tb.Helper()
	c := &types.DocumentChunk{
		ID:          uuid.New(),
		DocumentID:  documentID,
		ChunkID:     fmt.Sprintf("%s_chunk_%04d", docID, ordinal),
		Ordinal:     ordinal,
		Text:        fmt.Sprintf("chunk %d text", ordinal),
		Page:        1,
		StartOffset: ordinal * 100,
		EndOffset:   ordinal*100 + 90,
		Metadata:    datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed document chunk: %v", err)
	}
	return c
}

func SeedAuditEvent(tb testing.TB, ctx context.Context, tx *gorm.DB, requestID string, seq int, stage, eventType string) *types.AuditEvent {
	tb.Helper()
	e := &types.AuditEvent{
		ID:        uuid.New(),
		RequestID: requestID,
		SessionID: "sess_fixture",
		Seq:       seq,
		Stage:     stage,
		EventType: eventType,
		Data:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed audit event: %v", err)
	}
	return e
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
