package db

import (
	"fmt"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Documents (uploads + chunking)
		// =========================
		&types.Document{},
		&types.DocumentChunk{},

		// =========================
		// Pipeline audit trail
		// =========================
		&types.AuditEvent{},

		// =========================
		// Evaluation harness
		// =========================
		&types.EvalRun{},
	)
}

func EnsureDocumentIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	// Listing is newest-first over live rows.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_created_at
		ON document (created_at DESC)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_created_at: %w", err)
	}
	// Chunk reload walks a document in ordinal order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunk_document_ordinal
		ON document_chunk (document_id, ordinal);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunk_document_ordinal: %w", err)
	}
	return nil
}

func EnsureAuditIndexes(db *gorm.DB) error {
	// Trail reads fetch every event for a request in emission order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_audit_event_request_seq
		ON audit_event (request_id, seq);
	`).Error; err != nil {
		return fmt.Errorf("create idx_audit_event_request_seq: %w", err)
	}

	// Session history pages backwards through a conversation.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_audit_event_session_created
		ON audit_event (session_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_audit_event_session_created: %w", err)
	}

	// Stats counters scan by event type only.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_audit_event_event_type
		ON audit_event (event_type);
	`).Error; err != nil {
		return fmt.Errorf("create idx_audit_event_event_type: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureDocumentIndexes(s.db); err != nil {
		s.log.Error("Document index migration failed", "error", err)
		return err
	}
	if err := EnsureAuditIndexes(s.db); err != nil {
		s.log.Error("Audit index migration failed", "error", err)
		return err
	}

	return nil
}
