package agent

import (
	"context"
	"fmt"
	"time"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
	"github.com/clinvault/clinvault-backend/internal/safety"
)

// ContextRetriever is the slice of the retrieval layer the pipeline needs:
// ranked citations plus the full text behind each one.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.Citation, error)
	ChunkText(ctx context.Context, chunkID string) (string, error)
}

// ToolCaller invokes auxiliary tools. Call failures are carried inside the
// returned record, never as errors.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) types.ToolCall
}

// AuditSink persists a request's trail. A sink failure is logged and
// swallowed; it must never cost the caller an answer.
type AuditSink interface {
	Append(ctx context.Context, events []types.AuditEvent) error
}

// Orchestrator runs the per-request pipeline:
//
//	intent → retrieval and/or tools → synthesis → safety → audit
//
// Execute returns no error. Whatever happens inside, the caller gets a
// state with a non-empty answer and a closed audit trail.
type Orchestrator interface {
	Execute(ctx context.Context, s *State) *State
}

type orchestrator struct {
	retriever ContextRetriever
	tools     ToolCaller
	generator openai.TextGenerator
	validator safety.Validator
	filter    *safety.ContentFilter
	audit     AuditSink
	log       *logger.Logger
}

func NewOrchestrator(
	retriever ContextRetriever,
	tools ToolCaller,
	generator openai.TextGenerator,
	validator safety.Validator,
	filter *safety.ContentFilter,
	audit AuditSink,
	log *logger.Logger,
) Orchestrator {
	return &orchestrator{
		retriever: retriever,
		tools:     tools,
		generator: generator,
		validator: validator,
		filter:    filter,
		audit:     audit,
		log:       log.With("service", "Orchestrator"),
	}
}

func (o *orchestrator) Execute(ctx context.Context, s *State) *State {
	s.StartedAt = time.Now().UTC()
	o.log.Info("Pipeline started", "request_id", s.RequestID,
		"query_length", len(s.Query), "top_k", s.TopK)
	s.AddEvent(types.StageStart, types.EventPipelineStarted, map[string]any{
		"query_length": len(s.Query),
		"top_k":        s.TopK,
	}, 0)

	runErr := o.run(ctx, s)
	if runErr != nil {
		o.log.Error("Pipeline error", "request_id", s.RequestID, "stage", s.Stage, "error", runErr)
		s.Answer = pipelineFallbackAnswer
		s.ShouldRefuse = true
	}

	// The audit stage runs no matter how the sequence ended.
	o.recordAudit(ctx, s, runErr)

	s.EndedAt = time.Now().UTC()
	s.Stage = types.StageEnd
	o.log.Info("Pipeline completed", "request_id", s.RequestID,
		"refused", s.ShouldRefuse, "duration_ms", s.DurationMS())
	return s
}

// run executes the guarded stage sequence. Stage panics are converted to
// errors here so one bad collaborator cannot take down the request.
func (o *orchestrator) run(ctx context.Context, s *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", s.Stage, r)
		}
	}()

	o.classifyIntent(s)

	if s.Intent == types.IntentRetrieve || s.Intent == types.IntentBoth {
		if err := o.retrieveChunks(ctx, s); err != nil {
			return err
		}
	}
	if s.Intent == types.IntentToolCall || s.Intent == types.IntentBoth {
		o.invokeTools(ctx, s)
	}

	o.synthesizeAnswer(ctx, s)
	o.validateSafety(s)

	if s.ShouldRefuse {
		o.log.Warn("Answer refused", "request_id", s.RequestID, "reason", s.RefusalMessage)
		s.Answer = s.RefusalMessage
		s.AddEvent(types.StageSafety, types.EventAnswerRefused, map[string]any{
			"reason": s.RefusalMessage,
		}, 0)
	}
	return nil
}
