package handlers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/http/response"
	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
)

const maxTopK = 50

type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
}

type QueryHandler struct {
	log     *logger.Logger
	query   services.QueryService
	metrics *observability.Metrics
}

func NewQueryHandler(log *logger.Logger, query services.QueryService, metrics *observability.Metrics) *QueryHandler {
	return &QueryHandler{
		log:     log.With("handler", "QueryHandler"),
		query:   query,
		metrics: metrics,
	}
}

// Answer runs one question through the pipeline. Refusals come back as
// 200s with refused set; the only client errors are a malformed body,
// a blank query, and an out-of-range top_k. A session_id in the body
// takes precedence over the middleware-minted one so follow-up
// questions land in the caller's chosen session.
func (h *QueryHandler) Answer(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		response.RespondError(c, http.StatusBadRequest, "invalid_top_k", nil)
		return
	}

	requestID, sessionID := "", ""
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		requestID = rd.RequestID
		sessionID = rd.SessionID
	}
	if req.SessionID != "" {
		sessionID = req.SessionID
	}

	result, err := h.query.Answer(c.Request.Context(), services.QueryRequest{
		RequestID: requestID,
		Query:     req.Query,
		SessionID: sessionID,
		TopK:      req.TopK,
	})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", err)
		return
	}

	decision := ""
	phiDetected := false
	if result.Safety != nil {
		decision = result.Safety.Decision
		phiDetected = slices.Contains(result.Safety.Flags, "phi_detected")
	}
	h.metrics.ObserveQuery(result.Intent, decision, result.Refused, phiDetected)
	for _, call := range result.ToolCalls {
		status := "success"
		if call.Error != "" {
			status = "error"
		}
		h.metrics.IncToolCall(call.Tool, status)
	}

	response.RespondOK(c, result)
}
