package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinvault/clinvault-backend/internal/agent"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	pkgerrors "github.com/clinvault/clinvault-backend/internal/pkg/errors"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type fakeOrchestrator struct {
	received *agent.State
}

func (f *fakeOrchestrator) Execute(_ context.Context, s *agent.State) *agent.State {
	f.received = s
	s.Intent = types.IntentRetrieve
	s.Answer = "Lisinopril starts at 10 mg once daily. [1]"
	s.Citations = []types.Citation{{
		ChunkID:    "doc_x_chunk_0000",
		DocumentID: "doc_x",
		Similarity: 0.91,
		Snippet:    "Lisinopril starting dose is 10 mg once daily.",
		Page:       1,
	}}
	s.Safety = &types.SafetyValidation{
		Decision:        types.DecisionApproved,
		ConfidenceScore: 0.9,
		GroundingScore:  0.91,
	}
	s.EndedAt = time.Now()
	return s
}

func newQueryService(t *testing.T, orch agent.Orchestrator) QueryService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewQueryService(log, orch)
}

func TestQueryServiceAnswerMintsIDs(t *testing.T) {
	orch := &fakeOrchestrator{}
	svc := newQueryService(t, orch)

	res, err := svc.Answer(context.Background(), QueryRequest{Query: "  What is the starting dose of lisinopril?  "})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !strings.HasPrefix(res.RequestID, "req_") {
		t.Fatalf("RequestID=%q, want req_ prefix", res.RequestID)
	}
	if !strings.HasPrefix(res.SessionID, "sess_") {
		t.Fatalf("SessionID=%q, want sess_ prefix", res.SessionID)
	}
	if orch.received == nil {
		t.Fatalf("orchestrator never ran")
	}
	if orch.received.Query != "What is the starting dose of lisinopril?" {
		t.Fatalf("query not trimmed: %q", orch.received.Query)
	}
	if orch.received.TopK != 5 {
		t.Fatalf("TopK=%d, want pipeline default 5", orch.received.TopK)
	}
	if res.Answer != "Lisinopril starts at 10 mg once daily. [1]" {
		t.Fatalf("Answer=%q", res.Answer)
	}
	if res.Intent != types.IntentRetrieve {
		t.Fatalf("Intent=%q", res.Intent)
	}
	if len(res.Citations) != 1 || res.Citations[0].ChunkID != "doc_x_chunk_0000" {
		t.Fatalf("citations not carried: %+v", res.Citations)
	}
	if res.Refused {
		t.Fatalf("Refused=true for an approved answer")
	}
	if res.Safety == nil || res.Safety.Decision != types.DecisionApproved {
		t.Fatalf("safety not carried: %+v", res.Safety)
	}
}

func TestQueryServiceAnswerKeepsProvidedIDs(t *testing.T) {
	orch := &fakeOrchestrator{}
	svc := newQueryService(t, orch)

	res, err := svc.Answer(context.Background(), QueryRequest{
		RequestID: "req_abc123def456",
		Query:     "What is the maximum dose?",
		SessionID: "sess_followup",
		TopK:      3,
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.RequestID != "req_abc123def456" {
		t.Fatalf("RequestID=%q, want req_abc123def456", res.RequestID)
	}
	if res.SessionID != "sess_followup" {
		t.Fatalf("SessionID=%q, want sess_followup", res.SessionID)
	}
	if orch.received.TopK != 3 {
		t.Fatalf("TopK=%d, want 3", orch.received.TopK)
	}
}

func TestQueryServiceAnswerBlankQuery(t *testing.T) {
	orch := &fakeOrchestrator{}
	svc := newQueryService(t, orch)

	_, err := svc.Answer(context.Background(), QueryRequest{Query: "   "})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("err=%v, want ErrInvalidArgument", err)
	}
	if orch.received != nil {
		t.Fatalf("orchestrator must not run for a blank query")
	}
}
