package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinvault/clinvault-backend/internal/agent"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	pkgerrors "github.com/clinvault/clinvault-backend/internal/pkg/errors"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

// QueryRequest is one question against the indexed corpus. RequestID and
// SessionID are optional; fresh ids are minted when blank, and the HTTP
// layer passes the ids it minted so the audit trail matches the response
// headers. TopK of zero means the pipeline default.
type QueryRequest struct {
	RequestID string
	Query     string
	SessionID string
	TopK      int
}

// QueryService runs a question through the full pipeline and always
// hands back a result; refusals are results, not errors. The only error
// it returns is a blank query.
type QueryService interface {
	Answer(ctx context.Context, req QueryRequest) (*types.QueryResult, error)
}

type queryService struct {
	log          *logger.Logger
	orchestrator agent.Orchestrator
}

func NewQueryService(baseLog *logger.Logger, orchestrator agent.Orchestrator) QueryService {
	serviceLog := baseLog.With("service", "QueryService")
	return &queryService{
		log:          serviceLog,
		orchestrator: orchestrator,
	}
}

func (qs *queryService) Answer(ctx context.Context, req QueryRequest) (*types.QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query required: %w", pkgerrors.ErrInvalidArgument)
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = utils.NewRequestID()
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = utils.NewSessionID()
	}

	qs.log.Info("Processing query", "request_id", requestID, "session_id", sessionID, "query_length", len(query))

	state := agent.NewState(requestID, sessionID, query, req.TopK)
	final := qs.orchestrator.Execute(ctx, state)
	result := final.Result()

	qs.log.Info("Query completed", "request_id", requestID, "intent", result.Intent, "refused", result.Refused, "latency_ms", result.LatencyMS)
	return &result, nil
}
