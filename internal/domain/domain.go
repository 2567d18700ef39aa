package domain

import (
	"github.com/clinvault/clinvault-backend/internal/domain/auditlog"
	"github.com/clinvault/clinvault-backend/internal/domain/docs"
	"github.com/clinvault/clinvault-backend/internal/domain/evals"
	"github.com/clinvault/clinvault-backend/internal/domain/qa"
)

const (
	DocumentStatusUploaded   = docs.DocumentStatusUploaded
	DocumentStatusProcessing = docs.DocumentStatusProcessing
	DocumentStatusIndexed    = docs.DocumentStatusIndexed
	DocumentStatusFailed     = docs.DocumentStatusFailed

	IntentRetrieve = qa.IntentRetrieve
	IntentToolCall = qa.IntentToolCall
	IntentBoth     = qa.IntentBoth

	DecisionApproved = qa.DecisionApproved
	DecisionWarning  = qa.DecisionWarning
	DecisionRejected = qa.DecisionRejected

	StageStart     = auditlog.StageStart
	StageIntent    = auditlog.StageIntent
	StageRetrieval = auditlog.StageRetrieval
	StageTool      = auditlog.StageTool
	StageSynthesis = auditlog.StageSynthesis
	StageSafety    = auditlog.StageSafety
	StageAudit     = auditlog.StageAudit
	StageEnd       = auditlog.StageEnd
	StageIngestion = auditlog.StageIngestion

	EventPipelineStarted   = auditlog.EventPipelineStarted
	EventIntentClassified  = auditlog.EventIntentClassified
	EventChunksRetrieved   = auditlog.EventChunksRetrieved
	EventToolInvoked       = auditlog.EventToolInvoked
	EventAnswerSynthesized = auditlog.EventAnswerSynthesized
	EventSafetyValidated   = auditlog.EventSafetyValidated
	EventAnswerRefused     = auditlog.EventAnswerRefused
	EventPipelineCompleted = auditlog.EventPipelineCompleted
	EventPipelineFailed    = auditlog.EventPipelineFailed
	EventDocumentUploaded  = auditlog.EventDocumentUploaded
	EventChunksIndexed     = auditlog.EventChunksIndexed
	EventIngestFailed      = auditlog.EventIngestFailed
)

type Document = docs.Document
type DocumentChunk = docs.DocumentChunk
type Chunk = docs.Chunk
type Page = docs.Page

type Citation = qa.Citation
type SafetyValidation = qa.SafetyValidation
type ToolCall = qa.ToolCall
type QueryResult = qa.QueryResult

type AuditEvent = auditlog.AuditEvent

type EvalRun = evals.EvalRun
