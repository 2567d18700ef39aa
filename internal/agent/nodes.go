package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	types "github.com/clinvault/clinvault-backend/internal/domain"
)

// Fallback answers. The wording is part of the user-facing contract.
const (
	synthesisFallbackAnswer = "I encountered an error generating the answer. Please try again."
	pipelineFallbackAnswer  = "An error occurred processing your request. Please try again."
)

const synthesisSystemPrompt = "You are a clinical document assistant. Answer the question based ONLY on the provided context.\n" +
	"If the context doesn't contain enough information to answer, say so."

// Trigger lists for the tool stage. Narrower than the intent keywords on
// purpose: intent picks the route, these pick the individual calls.
var (
	calculatorTriggers = []string{"calculate", "compute", "add", "multiply", "divide"}
	phiTriggers        = []string{"phi", "pii", "personal", "privacy"}

	numberRE = regexp.MustCompile(`\d+\.?\d*`)
)

func (o *orchestrator) classifyIntent(s *State) {
	started := time.Now()
	s.Stage = types.StageIntent

	s.Intent = ClassifyIntent(s.Query)

	s.AddEvent(types.StageIntent, types.EventIntentClassified, map[string]any{
		"intent": s.Intent,
	}, time.Since(started))
	o.log.Info("Intent classified", "request_id", s.RequestID, "intent", s.Intent)
}

func (o *orchestrator) retrieveChunks(ctx context.Context, s *State) error {
	started := time.Now()
	s.Stage = types.StageRetrieval

	citations, err := o.retriever.Retrieve(ctx, s.Query, s.TopK)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	s.Citations = citations

	// Citations carry truncated snippets; the synthesis context wants the
	// full chunk text, numbered to match the citation labels.
	parts := make([]string, 0, len(citations))
	for i, citation := range citations {
		text, err := o.retriever.ChunkText(ctx, citation.ChunkID)
		if err != nil {
			return fmt.Errorf("chunk text %s: %w", citation.ChunkID, err)
		}
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, text))
	}
	s.RetrievedContext = strings.Join(parts, "\n\n")

	topSimilarity := 0.0
	if len(citations) > 0 {
		topSimilarity = citations[0].Similarity
	}
	s.AddEvent(types.StageRetrieval, types.EventChunksRetrieved, map[string]any{
		"num_citations":  len(citations),
		"top_similarity": topSimilarity,
	}, time.Since(started))
	o.log.Info("Retrieval completed", "request_id", s.RequestID, "num_citations", len(citations))
	return nil
}

func (o *orchestrator) invokeTools(ctx context.Context, s *State) {
	started := time.Now()
	s.Stage = types.StageTool
	lower := strings.ToLower(s.Query)

	if containsAny(lower, calculatorTriggers) {
		// Argument extraction is heuristic: first two numbers in the
		// query, added.
		numbers := numberRE.FindAllString(s.Query, -1)
		if len(numbers) >= 2 {
			a, _ := strconv.ParseFloat(numbers[0], 64)
			b, _ := strconv.ParseFloat(numbers[1], 64)
			call := o.tools.CallTool(ctx, "calculator", map[string]any{
				"operation": "add",
				"a":         a,
				"b":         b,
			})
			s.ToolCalls = append(s.ToolCalls, call)
			if call.Result != nil {
				s.ToolResults["calculator"] = call.Result
			}
		}
	}

	if containsAny(lower, phiTriggers) {
		call := o.tools.CallTool(ctx, "phi_detector", map[string]any{"text": s.Query})
		s.ToolCalls = append(s.ToolCalls, call)
		if call.Result != nil {
			s.ToolResults["phi_detector"] = call.Result
		}
	}

	s.AddEvent(types.StageTool, types.EventToolInvoked, map[string]any{
		"num_tool_calls": len(s.ToolCalls),
	}, time.Since(started))
	o.log.Info("Tools executed", "request_id", s.RequestID, "num_tool_calls", len(s.ToolCalls))
}

func (o *orchestrator) synthesizeAnswer(ctx context.Context, s *State) {
	started := time.Now()
	s.Stage = types.StageSynthesis

	answer, err := o.generator.GenerateText(ctx, synthesisSystemPrompt, buildSynthesisPrompt(s))
	if err != nil {
		o.log.Error("Synthesis failed", "request_id", s.RequestID, "error", err)
		answer = synthesisFallbackAnswer
	}
	s.Answer = o.filter.AddMedicalDisclaimer(answer)

	s.AddEvent(types.StageSynthesis, types.EventAnswerSynthesized, map[string]any{
		"answer_length": len(s.Answer),
	}, time.Since(started))
	o.log.Info("Answer synthesized", "request_id", s.RequestID, "answer_length", len(s.Answer))
}

// buildSynthesisPrompt assembles the user prompt: numbered context, tool
// results when present, then the question and the citation instruction.
func buildSynthesisPrompt(s *State) string {
	parts := []string{
		"Context from documents:",
		s.RetrievedContext,
		"",
	}

	if len(s.ToolResults) > 0 {
		parts = append(parts, "Tool execution results:")
		names := make([]string, 0, len(s.ToolResults))
		for name := range s.ToolResults {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("- %s: %v", name, s.ToolResults[name]))
		}
		parts = append(parts, "")
	}

	parts = append(parts,
		fmt.Sprintf("Question: %s", s.Query),
		"",
		"Answer (cite sources using [1], [2], etc.):",
	)
	return strings.Join(parts, "\n")
}

func (o *orchestrator) validateSafety(s *State) {
	started := time.Now()
	s.Stage = types.StageSafety

	validation := o.validator.Validate(s.Query, s.Answer, s.Citations)
	s.Safety = &validation
	s.ShouldRefuse, s.RefusalMessage = o.validator.ApplyRefusalPolicy(validation)

	s.AddEvent(types.StageSafety, types.EventSafetyValidated, map[string]any{
		"decision":         validation.Decision,
		"grounding_score":  validation.GroundingScore,
		"confidence_score": validation.ConfidenceScore,
		"flags":            validation.Flags,
	}, time.Since(started))
	o.log.Info("Safety validated", "request_id", s.RequestID, "decision", validation.Decision)
}

// recordAudit closes the trail and hands it to the sink. Persistence is
// detached from the request context so a cancelled caller still leaves a
// complete trail behind.
func (o *orchestrator) recordAudit(ctx context.Context, s *State, runErr error) {
	started := time.Now()
	s.Stage = types.StageAudit

	if runErr != nil {
		s.AddEvent(types.StageAudit, types.EventPipelineFailed, map[string]any{
			"error": runErr.Error(),
		}, time.Since(started))
	} else {
		data := map[string]any{
			"audit_logged":      true,
			"total_duration_ms": s.DurationMS(),
		}
		if s.Safety != nil {
			data["decision"] = s.Safety.Decision
		}
		s.AddEvent(types.StageAudit, types.EventPipelineCompleted, data, time.Since(started))
	}

	if o.audit != nil {
		if err := o.audit.Append(context.WithoutCancel(ctx), s.AuditEvents); err != nil {
			o.log.Error("Audit trail persist failed", "request_id", s.RequestID, "error", err)
		}
	}
	o.log.Info("Audit complete", "request_id", s.RequestID,
		"num_events", len(s.AuditEvents), "total_duration_ms", s.DurationMS())
}
