package auditlog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Pipeline stages, in execution order. Stage values in a request's trail
// only ever move forward through this list.
const (
	StageStart     = "start"
	StageIntent    = "intent_classification"
	StageRetrieval = "retrieval"
	StageTool      = "tool_invocation"
	StageSynthesis = "synthesis"
	StageSafety    = "safety_validation"
	StageAudit     = "audit"
	StageEnd       = "end"

	StageIngestion = "ingestion"
)

const (
	EventPipelineStarted   = "pipeline_started"
	EventIntentClassified  = "intent_classified"
	EventChunksRetrieved   = "chunks_retrieved"
	EventToolInvoked       = "tool_invoked"
	EventAnswerSynthesized = "answer_synthesized"
	EventSafetyValidated   = "safety_validated"
	EventAnswerRefused     = "answer_refused"
	EventPipelineCompleted = "pipeline_completed"
	EventPipelineFailed    = "pipeline_failed"

	EventDocumentUploaded = "document_uploaded"
	EventChunksIndexed    = "chunks_indexed"
	EventIngestFailed     = "ingest_failed"
)

// AuditEvent is append-only: rows are inserted and read, never updated
// or deleted. Seq orders events within one request.
type AuditEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RequestID  string         `gorm:"column:request_id;not null;index" json:"request_id"`
	SessionID  string         `gorm:"column:session_id;index" json:"session_id"`
	Seq        int            `gorm:"column:seq;not null" json:"seq"`
	Stage      string         `gorm:"column:stage;not null" json:"stage"`
	EventType  string         `gorm:"column:event_type;not null" json:"event_type"`
	Data       datatypes.JSON `gorm:"type:jsonb;column:data" json:"data,omitempty"`
	DurationMS float64        `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }
